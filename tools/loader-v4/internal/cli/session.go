package cli

import (
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/solana-program/loader-v4/smartcontract/sdk/go/loaderv4"
)

// session is a client bound to either a cluster or a simulated ledger.
type session struct {
	log    *slog.Logger
	client *loaderv4.Client

	// commit persists a simulated ledger and release frees it; both are nil
	// for cluster sessions.
	commit  func() error
	release func()
}

// finish commits the session when err is nil and releases it either way.
func (s *session) finish(err error) error {
	if s.release != nil {
		defer s.release()
	}
	if err == nil && s.commit != nil {
		err = s.commit()
	}
	return err
}

type connector func(cmd *cobra.Command, needSigner bool) (*session, error)

func connectRPC(cmd *cobra.Command, needSigner bool) (*session, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	signer, err := loadSigner(s, needSigner)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Connecting", "url", s.rpcURL, "program", s.programID, "commitment", s.commitment)
	rpc := loaderv4.NewRPCClient(s.rpcURL, nil)
	return &session{
		log:    s.log,
		client: loaderv4.New(s.log, rpc, signer, s.programID, loaderv4.WithCommitment(s.commitment)),
	}, nil
}

func loadSigner(s *settings, needSigner bool) (*solana.PrivateKey, error) {
	key, err := loadKeypair(s.keypairPath)
	if err != nil {
		if needSigner {
			return nil, fmt.Errorf("failed to load authority keypair: %w", err)
		}
		return nil, nil
	}
	return &key, nil
}
