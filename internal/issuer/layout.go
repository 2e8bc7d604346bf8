package issuer

import (
	"path/filepath"

	"github.com/wolfeidau/certchain/internal/pki"
	"github.com/wolfeidau/certchain/internal/policy"
)

// Layout names the files written for one chain.
type Layout struct {
	RootKey    string
	RootCert   string
	RootSerial string
	RootDER    string
	RootBase64 string

	LeafKey    string
	LeafCSR    string
	LeafCert   string
	LeafDER    string
	LeafBase64 string

	// Config and ExtFile are the openssl equivalents of the signing policy,
	// written only when requested.
	Config  string
	ExtFile string
}

// PrefixedLayout names files after the leftmost label of domain, so
// example.com produces example_rootCA.pem, example_leaf.pem and so on.
func PrefixedLayout(domain string) Layout {
	return layout(pki.Subdomain(domain) + "_")
}

// FixedLayout uses the unprefixed names rootCA.pem, leaf.pem and so on.
func FixedLayout() Layout {
	return layout("")
}

func layout(prefix string) Layout {
	return Layout{
		RootKey:    prefix + "rootCA.key",
		RootCert:   prefix + "rootCA.pem",
		RootSerial: prefix + "rootCA.srl",
		RootDER:    prefix + "rootCA.der",
		RootBase64: prefix + "rootCA_base64.txt",
		LeafKey:    prefix + "leaf.key",
		LeafCSR:    prefix + "leaf.csr",
		LeafCert:   prefix + "leaf.pem",
		LeafDER:    prefix + "leaf.der",
		LeafBase64: prefix + "leaf_base64.txt",
		Config:     prefix + policy.OpenSSLConfigFile,
		ExtFile:    prefix + policy.ExtFileName,
	}
}

// In returns the layout with every name joined to dir.
func (l Layout) In(dir string) Layout {
	return Layout{
		RootKey:    filepath.Join(dir, l.RootKey),
		RootCert:   filepath.Join(dir, l.RootCert),
		RootSerial: filepath.Join(dir, l.RootSerial),
		RootDER:    filepath.Join(dir, l.RootDER),
		RootBase64: filepath.Join(dir, l.RootBase64),
		LeafKey:    filepath.Join(dir, l.LeafKey),
		LeafCSR:    filepath.Join(dir, l.LeafCSR),
		LeafCert:   filepath.Join(dir, l.LeafCert),
		LeafDER:    filepath.Join(dir, l.LeafDER),
		LeafBase64: filepath.Join(dir, l.LeafBase64),
		Config:     filepath.Join(dir, l.Config),
		ExtFile:    filepath.Join(dir, l.ExtFile),
	}
}
