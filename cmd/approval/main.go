package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/instidoc/institution-registry-backend/cmd/flags"
	"github.com/instidoc/institution-registry-backend/cryptoutils"
	"github.com/instidoc/institution-registry-backend/factory"
	"github.com/instidoc/institution-registry-backend/interfaces"
	"github.com/instidoc/institution-registry-backend/sigledger"
)

var approvalFlags = []cli.Flag{
	flags.InstitutionNameFlag,
	flags.DomainVersionFlag,
	&cli.Uint64Flag{
		Name:     "document-id",
		Required: true,
		Usage:    "document id the approval is for",
	},
	&cli.StringFlag{
		Name:     "role",
		Required: true,
		Usage:    "role id the approval is made under. 64-char hex string",
	},
	&cli.StringFlag{
		Name:     "content-hash",
		Required: true,
		Usage:    "keccak256 hash of the document content. 64-char hex string",
	},
	&cli.StringFlag{
		Name:     "deadline",
		Required: true,
		Usage:    "signature validity deadline in RFC3339 format",
	},
}

func main() {
	app := &cli.App{
		Name:  "approval",
		Usage: "Manage approval signer keys and produce document approval signatures",
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "generate a signer key and store it password encrypted",
				Flags: []cli.Flag{flags.KeyFileFlag, flags.KeyPasswordFlag},
				Action: func(cCtx *cli.Context) error {
					password := cCtx.String(flags.KeyPasswordFlag.Name)
					if password == "" {
						return errors.New("key-password is required")
					}

					signer, err := cryptoutils.GenerateSigner()
					if err != nil {
						return err
					}
					if err := cryptoutils.SaveKeyFile(cCtx.String(flags.KeyFileFlag.Name), signer, []byte(password)); err != nil {
						return err
					}

					fmt.Println(signer.Address().String())
					return nil
				},
			},
			{
				Name:  "address",
				Usage: "print the address of a stored signer key",
				Flags: []cli.Flag{flags.KeyFileFlag, flags.KeyPasswordFlag},
				Action: func(cCtx *cli.Context) error {
					signer, err := loadSigner(cCtx)
					if err != nil {
						return err
					}
					fmt.Println(signer.Address().String())
					return nil
				},
			},
			{
				Name:  "sign",
				Usage: "sign a document approval under the institution's domain",
				Flags: append([]cli.Flag{flags.KeyFileFlag, flags.KeyPasswordFlag}, approvalFlags...),
				Action: func(cCtx *cli.Context) error {
					signer, err := loadSigner(cCtx)
					if err != nil {
						return err
					}
					msg, domain, err := approvalFromFlags(cCtx, signer.Address())
					if err != nil {
						return err
					}

					digest, err := msg.Digest(domain)
					if err != nil {
						return err
					}
					sig, err := signer.SignDigest(digest)
					if err != nil {
						return err
					}

					fmt.Println(hex.EncodeToString(sig))
					return nil
				},
			},
			{
				Name:  "verify",
				Usage: "verify an approval signature offline",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "signer",
						Required: true,
						Usage:    "claimed signer address. 40-char hex string",
					},
					&cli.StringFlag{
						Name:     "signature",
						Required: true,
						Usage:    "130-char hex compact signature",
					},
				}, approvalFlags...),
				Action: func(cCtx *cli.Context) error {
					claimed, err := interfaces.NewAddressFromHex(cCtx.String("signer"))
					if err != nil {
						return err
					}
					sig, err := hex.DecodeString(cCtx.String("signature"))
					if err != nil {
						return fmt.Errorf("invalid signature hex: %w", err)
					}
					msg, domain, err := approvalFromFlags(cCtx, claimed)
					if err != nil {
						return err
					}

					recovered, err := msg.RecoverSigner(domain, interfaces.Signature(sig))
					if err != nil {
						return err
					}
					if !recovered.Equal(claimed) {
						return fmt.Errorf("signature recovers to %s, not %s", recovered, claimed)
					}

					fmt.Println("valid")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadSigner(cCtx *cli.Context) (*cryptoutils.ApprovalSigner, error) {
	password := cCtx.String(flags.KeyPasswordFlag.Name)
	if password == "" {
		return nil, errors.New("key-password is required")
	}
	return cryptoutils.LoadKeyFile(cCtx.String(flags.KeyFileFlag.Name), []byte(password))
}

func approvalFromFlags(cCtx *cli.Context, signer interfaces.Address) (sigledger.ApprovalMessage, sigledger.Domain, error) {
	role, err := interfaces.NewRoleIDFromHex(cCtx.String("role"))
	if err != nil {
		return sigledger.ApprovalMessage{}, sigledger.Domain{}, err
	}
	contentHash, err := interfaces.NewContentIDFromHex(cCtx.String("content-hash"))
	if err != nil {
		return sigledger.ApprovalMessage{}, sigledger.Domain{}, err
	}
	deadline, err := time.Parse(time.RFC3339, cCtx.String("deadline"))
	if err != nil {
		return sigledger.ApprovalMessage{}, sigledger.Domain{}, fmt.Errorf("invalid deadline: %w", err)
	}

	domain := factory.SigningDomain(
		cCtx.String(flags.InstitutionNameFlag.Name),
		cCtx.String(flags.DomainVersionFlag.Name),
	)
	return sigledger.ApprovalMessage{
		DocumentID:  interfaces.DocumentID(cCtx.Uint64("document-id")),
		Signer:      signer,
		Role:        role,
		ContentHash: contentHash,
		Deadline:    deadline,
	}, domain, nil
}
