package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gm-dapp/internal/model"
)

func TestStructAcceptsValidSendRequest(t *testing.T) {
	req := model.SendRequest{
		Accounts:     []string{"eip155:1:0xabc"},
		Notification: model.Notification{Title: "gm!", Body: "test", Type: "manual"},
	}
	assert.NoError(t, Struct(req))
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	req := model.SendRequest{
		Accounts:     []string{"0xabc"},
		Notification: model.Notification{Body: "test", Type: "manual"},
	}
	err := Struct(req)
	require.Error(t, err)

	fieldErrs, ok := err.(FieldErrors)
	require.True(t, ok, "expected FieldErrors, got %T", err)

	fields := map[string]string{}
	for _, fe := range fieldErrs {
		fields[fe.Field] = fe.Tag
	}
	assert.Equal(t, "caip10", fields["accounts[0]"])
	assert.Equal(t, "required", fields["title"])
}

func TestVarCAIP10(t *testing.T) {
	assert.NoError(t, Var("eip155:1:0xabc", "caip10"))
	assert.Error(t, Var("0xabc", "caip10"))
}
