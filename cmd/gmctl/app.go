package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"github.com/spf13/viper"

	"gm-dapp/internal/config"
	"gm-dapp/internal/gmapi"
	"gm-dapp/internal/lifecycle"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
	"gm-dapp/internal/notifyclient/memory"
	"gm-dapp/internal/notifyclient/remote"
	"gm-dapp/internal/statefile"
	"gm-dapp/internal/wallet"
)

const stateVersion = 1

// cliState is the identity cached between gmctl invocations.
type cliState struct {
	Account     string `json:"account"`
	IdentityKey string `json:"identityKey"`
	Token       string `json:"token"`
	ServerURL   string `json:"serverUrl,omitempty"`
	Offline     bool   `json:"offline,omitempty"`
}

type app struct {
	v   *viper.Viper
	cfg config.ClientConfig
	in  io.Reader

	// offline is the in-process service, persisted after every command.
	offline *memory.Service
	api     *gmapi.Client
}

func newApp(in io.Reader) *app {
	v := config.NewViper()
	config.SetClientDefaults(v)
	return &app{v: v, in: in}
}

func (a *app) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.cfg.Timeout)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func (a *app) stateFile() *statefile.File {
	return statefile.New(expandHome(a.cfg.StateFile), stateVersion)
}

func (a *app) offlineFile() *statefile.File {
	return statefile.New(expandHome(a.cfg.StateFile)+".offline", stateVersion)
}

func (a *app) walletStore() (*wallet.Store, error) {
	cfg := wallet.StoreConfig{Dir: a.cfg.KeyringDir}
	if a.cfg.KeyringBackend != "" {
		cfg.Backends = []keyring.BackendType{keyring.BackendType(a.cfg.KeyringBackend)}
	}
	return wallet.OpenStore(cfg)
}

func (a *app) loadWallet() (*wallet.Wallet, error) {
	store, err := a.walletStore()
	if err != nil {
		return nil, err
	}
	return store.Load()
}

func (a *app) loadState() (cliState, bool, error) {
	var st cliState
	ok, err := a.stateFile().Load(&st)
	if err != nil {
		return cliState{}, false, err
	}
	if !ok || st.Offline != a.cfg.Offline {
		return cliState{}, false, nil
	}
	return st, true, nil
}

func (a *app) saveState(id lifecycle.Identity) error {
	st := cliState{
		Account:     id.Account,
		IdentityKey: id.IdentityKey,
		Token:       id.Token,
		Offline:     a.cfg.Offline,
	}
	if !a.cfg.Offline {
		st.ServerURL = a.cfg.ServerURL
	}
	return a.stateFile().Save(st, time.Now().UnixMilli())
}

// clients builds the notification client and backend for the configured mode.
func (a *app) clients() (notifyclient.Client, notifyclient.Backend, error) {
	if a.cfg.Offline {
		if a.offline == nil {
			svc := memory.New()
			var snap memory.Snapshot
			if _, err := a.offlineFile().Load(&snap); err != nil {
				return nil, nil, fmt.Errorf("load offline state: %w", err)
			}
			svc.Import(snap)
			a.offline = svc
		}
		return a.offline, a.offline, nil
	}

	api, err := gmapi.NewClient(gmapi.Config{ServerURL: a.cfg.ServerURL, Timeout: a.cfg.Timeout})
	if err != nil {
		return nil, nil, err
	}
	client, err := remote.New(remote.Config{RelayURL: a.cfg.RelayURL, ProjectID: a.cfg.ProjectID, Timeout: a.cfg.Timeout}, api)
	if err != nil {
		return nil, nil, err
	}
	a.api = api
	return client, &remote.Backend{API: api}, nil
}

func (a *app) persistOffline() error {
	if a.offline == nil {
		return nil
	}
	if err := a.offlineFile().Save(a.offline.Export(), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("save offline state: %w", err)
	}
	return nil
}

// session opens a lifecycle session for the stored wallet. With resume set
// the cached identity is restored and must belong to the wallet.
func (a *app) session(ctx context.Context, signer lifecycle.Signer, resume bool) (*lifecycle.Session, error) {
	client, backend, err := a.clients()
	if err != nil {
		return nil, err
	}
	sess, err := lifecycle.NewSession(lifecycle.Deps{
		Client:  client,
		Backend: backend,
		Signer:  signer,
		Chain:   a.cfg.Chain,
	})
	if err != nil {
		return nil, err
	}
	if !resume {
		return sess, nil
	}

	st, ok, err := a.loadState()
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	account, err := model.QualifyAccount(a.cfg.Chain, addressOf(signer))
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	if !ok || st.Account != account {
		_ = sess.Close()
		return nil, errors.New("not registered, run `gmctl register` first")
	}
	if a.api != nil {
		a.api.SetToken(st.Token)
	}
	if err := sess.Resume(ctx, lifecycle.Identity{Account: st.Account, IdentityKey: st.IdentityKey, Token: st.Token}); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

func addressOf(signer lifecycle.Signer) string {
	if p, ok := signer.(*promptSigner); ok {
		return p.wallet.Address()
	}
	return ""
}

// promptSigner asks for confirmation before signing.
type promptSigner struct {
	wallet    *wallet.Wallet
	in        io.Reader
	out       io.Writer
	assumeYes bool
}

func (p *promptSigner) PublicKey() string {
	return p.wallet.PublicKey()
}

func (p *promptSigner) Sign(ctx context.Context, message string) (string, error) {
	if !p.assumeYes {
		fmt.Fprintf(p.out, "Sign this message with your wallet?\n\n%s\n\n[y/N]: ", message)
		line, err := bufio.NewReader(p.in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			return "", errors.New("signature declined")
		}
	}
	return p.wallet.Sign(ctx, message)
}

// openSession loads the wallet and opens a resumed session.
func (a *app) openSession(ctx context.Context, out io.Writer) (*lifecycle.Session, *wallet.Wallet, error) {
	w, err := a.loadWallet()
	if err != nil {
		return nil, nil, err
	}
	sess, err := a.session(ctx, &promptSigner{wallet: w, in: a.in, out: out, assumeYes: true}, true)
	if err != nil {
		return nil, nil, err
	}
	return sess, w, nil
}
