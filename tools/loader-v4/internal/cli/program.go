package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/solana-program/loader-v4/smartcontract/sdk/go/loaderv4"
)

// programCommands returns the program lifecycle commands, all served through
// connect.
func programCommands(connect connector) []*cobra.Command {
	return []*cobra.Command{
		newShowCmd(connect),
		newDeployCmd(connect),
		newUploadCmd(connect),
		newRetractCmd(connect),
		newTransferAuthorityCmd(connect),
		newFinalizeCmd(connect),
		newCloseCmd(connect),
	}
}

// withSession runs fn against a fresh session and finishes it.
func withSession(cmd *cobra.Command, connect connector, needSigner bool, fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := connect(cmd, needSigner)
	if err != nil {
		return err
	}
	return s.finish(fn(ctx, s))
}

func printSignature(cmd *cobra.Command, sig solana.Signature) {
	fmt.Fprintf(cmd.OutOrStdout(), "Signature: %s\n", sig)
}

func newShowCmd(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "show <program>",
		Short: "Show the header and size of a program account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programPK, err := parsePublicKey(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, connect, false, func(ctx context.Context, s *session) error {
				info, err := s.client.GetProgramAccount(ctx, programPK)
				if err != nil {
					return err
				}
				renderProgram(cmd.OutOrStdout(), info)
				return nil
			})
		},
	}
}

// programFlag parses --program as a keypair, which can create the program,
// or as a public key.
func programFlag(cmd *cobra.Command, image []byte) (loaderv4.DeployConfig, error) {
	program, err := cmd.Flags().GetString("program")
	if err != nil {
		return loaderv4.DeployConfig{}, fmt.Errorf("failed to get program flag: %w", err)
	}
	config := loaderv4.DeployConfig{Image: image}
	if key, err := loadKeypair(program); err == nil {
		config.ProgramKey = &key
		config.ProgramPK = key.PublicKey()
		return config, nil
	}
	config.ProgramPK, err = parsePublicKey(program)
	return config, err
}

func newDeployCmd(connect connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy [image]",
		Short: "Upload an image and deploy it, creating or upgrading the program",
		Long: `Upload an image and deploy it, creating or upgrading the program.

With --source the program is upgraded in one transaction to the image staged
in a retracted source program (see "upload"), and no image is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceFlag, err := cmd.Flags().GetString("source")
			if err != nil {
				return fmt.Errorf("failed to get source flag: %w", err)
			}
			if sourceFlag != "" {
				if len(args) != 0 {
					return fmt.Errorf("an image cannot be given together with --source")
				}
				return deployFromSource(cmd, connect, sourceFlag)
			}
			if len(args) != 1 {
				return fmt.Errorf("an image or --source is required")
			}

			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			deployConfig, err := programFlag(cmd, image)
			if err != nil {
				return err
			}
			return withSession(cmd, connect, true, func(ctx context.Context, s *session) error {
				sig, err := s.client.Deploy(ctx, deployConfig)
				if err != nil {
					return err
				}
				printSignature(cmd, sig)
				return nil
			})
		},
	}
	cmd.Flags().StringP("program", "p", "", "Program keypair (required to create the program) or public key")
	cmd.Flags().String("source", "", "Retracted program whose image replaces the program's")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func deployFromSource(cmd *cobra.Command, connect connector, sourceFlag string) error {
	sourcePK, err := parsePublicKey(sourceFlag)
	if err != nil {
		return err
	}
	program, err := programFlag(cmd, nil)
	if err != nil {
		return err
	}
	return withSession(cmd, connect, true, func(ctx context.Context, s *session) error {
		sig, err := s.client.DeployFromSource(ctx, program.ProgramPK, sourcePK)
		if err != nil {
			return err
		}
		printSignature(cmd, sig)
		return nil
	})
}

func newUploadCmd(connect connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload an image into a program and leave it retracted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			config, err := programFlag(cmd, image)
			if err != nil {
				return err
			}
			return withSession(cmd, connect, true, func(ctx context.Context, s *session) error {
				if err := s.client.Upload(ctx, config); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d bytes to %s\n", len(image), config.ProgramPK)
				return nil
			})
		},
	}
	cmd.Flags().StringP("program", "p", "", "Program keypair (required to create the program) or public key")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func newRetractCmd(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "retract <program>",
		Short: "Retract a deployed program so it can be modified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programPK, err := parsePublicKey(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, connect, true, func(ctx context.Context, s *session) error {
				sig, err := s.client.Retract(ctx, programPK)
				if err != nil {
					return err
				}
				printSignature(cmd, sig)
				return nil
			})
		},
	}
}

func newTransferAuthorityCmd(connect connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer-authority <program>",
		Short: "Hand a program over to a new authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programPK, err := parsePublicKey(args[0])
			if err != nil {
				return err
			}
			newAuthorityFlag, err := cmd.Flags().GetString("new-authority")
			if err != nil {
				return fmt.Errorf("failed to get new-authority flag: %w", err)
			}
			newAuthority, err := loadKeypair(newAuthorityFlag)
			if err != nil {
				return fmt.Errorf("failed to load new authority keypair: %w", err)
			}
			return withSession(cmd, connect, true, func(ctx context.Context, s *session) error {
				sig, err := s.client.TransferAuthority(ctx, programPK, newAuthority)
				if err != nil {
					return err
				}
				printSignature(cmd, sig)
				return nil
			})
		},
	}
	cmd.Flags().String("new-authority", "", "Keypair of the new authority, which must co-sign")
	_ = cmd.MarkFlagRequired("new-authority")
	return cmd
}

func newFinalizeCmd(connect connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finalize <program>",
		Short: "Make a deployed program immutable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programPK, err := parsePublicKey(args[0])
			if err != nil {
				return err
			}
			nextVersionFlag, err := cmd.Flags().GetString("next-version")
			if err != nil {
				return fmt.Errorf("failed to get next-version flag: %w", err)
			}
			var nextVersion solana.PublicKey
			if nextVersionFlag != "" {
				nextVersion, err = parsePublicKey(nextVersionFlag)
				if err != nil {
					return err
				}
			}
			return withSession(cmd, connect, true, func(ctx context.Context, s *session) error {
				sig, err := s.client.Finalize(ctx, programPK, nextVersion)
				if err != nil {
					return err
				}
				printSignature(cmd, sig)
				return nil
			})
		},
	}
	cmd.Flags().String("next-version", "", "Successor program recorded in the finalized header (default: the program itself)")
	return cmd
}

func newCloseCmd(connect connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <program>",
		Short: "Truncate a retracted program to zero and reclaim its balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programPK, err := parsePublicKey(args[0])
			if err != nil {
				return err
			}
			destinationFlag, err := cmd.Flags().GetString("destination")
			if err != nil {
				return fmt.Errorf("failed to get destination flag: %w", err)
			}
			var destination solana.PublicKey
			if strings.TrimSpace(destinationFlag) != "" {
				destination, err = parsePublicKey(destinationFlag)
				if err != nil {
					return err
				}
			}
			return withSession(cmd, connect, true, func(ctx context.Context, s *session) error {
				sig, err := s.client.Close(ctx, programPK, destination)
				if err != nil {
					return err
				}
				printSignature(cmd, sig)
				return nil
			})
		},
	}
	cmd.Flags().String("destination", "", "Account that receives the reclaimed lamports (default: the authority)")
	return cmd
}
