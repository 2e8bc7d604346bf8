package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/certchain/internal/pki"
	"github.com/wolfeidau/certchain/internal/store"
	"github.com/wolfeidau/certchain/internal/store/file"
)

func newIssueCmd(dir string) *IssueCmd {
	return &IssueCmd{
		Domain:             "example.com",
		Country:            "SG",
		State:              "Singapore",
		Locality:           "Singapore",
		Organization:       "Erfi Corp",
		OrganizationalUnit: "Erfi Proxy",
		Days:               3650,
		RootDays:           1024,
		KeyBits:            2048,
		OutputDir:          dir,
		Timeout:            time.Minute,
	}
}

func TestIssueCmd_Run(t *testing.T) {
	tmpDir := t.TempDir()
	var stdout bytes.Buffer

	err := newIssueCmd(tmpDir).Run(context.Background(), &Globals{Stdout: &stdout})
	require.NoError(t, err)

	for _, name := range []string{
		"example_rootCA.key", "example_rootCA.pem", "example_rootCA.srl",
		"example_leaf.key", "example_leaf.csr", "example_leaf.pem",
		"example_leaf.der", "example_leaf_base64.txt",
		"example_rootCA.der", "example_rootCA_base64.txt",
		file.LedgerFile,
	} {
		_, err := os.Stat(filepath.Join(tmpDir, name))
		require.NoError(t, err, name)
	}

	leaf, err := pki.LoadCertificate(filepath.Join(tmpDir, "example_leaf.pem"))
	require.NoError(t, err)
	assert.Equal(t, "CN=example.com,OU=Erfi Proxy,O=Erfi Corp,L=Singapore,ST=Singapore,C=SG", leaf.Subject.String())
	assert.Equal(t, leaf.Subject.String(), leaf.Issuer.String())

	leafB64, err := os.ReadFile(filepath.Join(tmpDir, "example_leaf_base64.txt"))
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), string(leafB64))
	assert.Contains(t, stdout.String(), "Leaf Certificate Base64 DER written to")

	// both certificates are in the ledger
	certs, err := file.NewCertificateStore(tmpDir).List(context.Background(), store.ListCertificatesOptions{})
	require.NoError(t, err)
	require.Len(t, certs, 2)

	roles := []store.Role{certs[0].Role, certs[1].Role}
	assert.ElementsMatch(t, []store.Role{store.RoleRoot, store.RoleLeaf}, roles)
	assert.Equal(t, certs[0].RunID, certs[1].RunID)
	assert.NotEmpty(t, certs[0].RunID)

	leafMeta, err := file.NewCertificateStore(tmpDir).Get(context.Background(), store.Fingerprint(leaf.Raw))
	require.NoError(t, err)
	assert.Equal(t, "example_leaf.pem", leafMeta.Path)
	assert.Equal(t, "example.com", leafMeta.Domain)
}

func TestIssueCmd_ReuseRoot(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, newIssueCmd(tmpDir).Run(context.Background(), &Globals{Stdout: &bytes.Buffer{}}))

	root, err := pki.LoadCertificate(filepath.Join(tmpDir, "example_rootCA.pem"))
	require.NoError(t, err)

	cmd := newIssueCmd(tmpDir)
	cmd.ReuseRoot = true
	cmd.NoBase64 = true
	require.NoError(t, cmd.Run(context.Background(), &Globals{Stdout: &bytes.Buffer{}}))

	leaf, err := pki.LoadCertificate(filepath.Join(tmpDir, "example_leaf.pem"))
	require.NoError(t, err)
	require.NoError(t, leaf.CheckSignatureFrom(root))

	// root registered once, one leaf per run
	certs, err := file.NewCertificateStore(tmpDir).List(context.Background(), store.ListCertificatesOptions{})
	require.NoError(t, err)
	assert.Len(t, certs, 3)
}

func TestIssueCmd_EmitConfig(t *testing.T) {
	tmpDir := t.TempDir()

	cmd := newIssueCmd(tmpDir)
	cmd.Domain = "api.example.com"
	cmd.NoBase64 = true
	cmd.EmitConfig = true
	require.NoError(t, cmd.Run(context.Background(), &Globals{Stdout: &bytes.Buffer{}}))

	data, err := os.ReadFile(filepath.Join(tmpDir, "api_openssl.cnf"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "CN = api.example.com")

	_, err = os.Stat(filepath.Join(tmpDir, "api_v3.ext"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(tmpDir, "api_leaf_base64.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestIssueCmd_DryRun(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer

	cmd := newIssueCmd(dir)
	cmd.DryRun = true
	require.NoError(t, cmd.Run(context.Background(), &Globals{Stdout: &stdout}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	out := stdout.String()
	assert.Contains(t, out, "Dry run: nothing was written to "+dir)
	assert.Contains(t, out, filepath.Join(dir, "example_leaf.pem"))
	assert.Contains(t, out, filepath.Join(dir, "example_rootCA.key"))
	assert.Contains(t, out, "ROLE")
	assert.Contains(t, out, "example.com")

	t.Run("rejects reuse root", func(t *testing.T) {
		cmd := newIssueCmd(t.TempDir())
		cmd.DryRun = true
		cmd.ReuseRoot = true
		require.ErrorIs(t, cmd.Run(context.Background(), &Globals{}), pki.ErrConfig)
	})
}

func TestIssueCmd_Errors(t *testing.T) {
	t.Run("invalid domain", func(t *testing.T) {
		cmd := newIssueCmd(t.TempDir())
		cmd.Domain = "not a domain"
		require.ErrorIs(t, cmd.Run(context.Background(), &Globals{}), pki.ErrConfig)
	})

	t.Run("weak key", func(t *testing.T) {
		cmd := newIssueCmd(t.TempDir())
		cmd.KeyBits = 1024
		require.ErrorIs(t, cmd.Run(context.Background(), &Globals{}), pki.ErrConfig)
	})

	t.Run("invalid validity", func(t *testing.T) {
		tests := []struct {
			name     string
			days     int
			rootDays int
		}{
			{"negative leaf days", -5, 1024},
			{"zero leaf days", 0, 1024},
			{"negative root days", 3650, -1},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				dir := t.TempDir()
				cmd := newIssueCmd(dir)
				cmd.Days = tt.days
				cmd.RootDays = tt.rootDays

				require.ErrorIs(t, cmd.Run(context.Background(), &Globals{}), pki.ErrConfig)

				entries, err := os.ReadDir(dir)
				require.NoError(t, err)
				assert.Empty(t, entries)
			})
		}
	})

	t.Run("invalid country", func(t *testing.T) {
		cmd := newIssueCmd(t.TempDir())
		cmd.Country = "Singapore"
		require.ErrorIs(t, cmd.Run(context.Background(), &Globals{}), pki.ErrConfig)
	})

	t.Run("unwritable output directory", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0600))

		cmd := newIssueCmd(filepath.Join(blocker, "certs"))
		require.ErrorIs(t, cmd.Run(context.Background(), &Globals{}), pki.ErrIO)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
