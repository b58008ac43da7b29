package main

import (
	"os"
	"path/filepath"

	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newKeygenCommand() *cobra.Command {
	var algorithm string
	var bits int
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen <path>",
		Short: "Write a PEM private key for TOKEN_SIGNING_KEY_FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeSigningKey(args[0], algorithm, bits, force)
		},
	}
	cmd.Flags().StringVar(&algorithm, "alg", "ES256", "key algorithm: ES256, ES384, ES512 or RS256")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func writeSigningKey(path, algorithm string, bits int, force bool) error {
	kp, err := token.GenerateKeyPair(algorithm, bits)
	if err != nil {
		return err
	}
	pemData, err := kp.MarshalPEM()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create key directory")
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	if _, err := f.Write(pemData); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}
