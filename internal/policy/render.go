package policy

import (
	"fmt"
	"strings"
)

// RenderConfig renders root and leaf profiles as an openssl.cnf document,
// the format LoadOpenSSLConfig reads back. Profiles are validated first so
// attribute values cannot introduce new lines or sections.
func RenderConfig(root, leaf Profile, bits int) (string, error) {
	if err := root.Validate(); err != nil {
		return "", err
	}
	if err := leaf.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder

	b.WriteString("[ req ]\n")
	fmt.Fprintf(&b, "default_bits = %d\n", bits)
	b.WriteString("prompt = no\n")
	fmt.Fprintf(&b, "default_md = %s\n", digestName(root.SignatureAlgorithm))
	b.WriteString("distinguished_name = dn\n\n")

	b.WriteString("[ dn ]\n")
	writeDN(&b, root)
	b.WriteString("\n")

	b.WriteString("[ v3_req ]\n")
	b.WriteString("subjectAltName = @alt_names\n\n")

	b.WriteString("[ alt_names ]\n")
	writeAltNames(&b, leaf)
	b.WriteString("\n")

	b.WriteString("[ v3_ca ]\n")
	b.WriteString("subjectKeyIdentifier = hash\n")
	b.WriteString("authorityKeyIdentifier = keyid:always,issuer:always\n")
	b.WriteString("basicConstraints = critical,CA:true\n")
	fmt.Fprintf(&b, "keyUsage = critical,%s\n", strings.ReplaceAll(FormatKeyUsage(root.KeyUsage), ", ", ","))

	return b.String(), nil
}

// RenderExtFile renders a leaf profile as an openssl x509 -extfile document.
func RenderExtFile(leaf Profile) (string, error) {
	if err := leaf.Validate(); err != nil {
		return "", err
	}
	if leaf.IsCA {
		return "", fmt.Errorf("extension file is only rendered for leaf profiles")
	}

	var b strings.Builder

	b.WriteString("authorityKeyIdentifier = keyid,issuer:always\n")
	b.WriteString("basicConstraints = CA:FALSE\n")
	fmt.Fprintf(&b, "keyUsage = %s\n", FormatKeyUsage(leaf.KeyUsage))
	b.WriteString("subjectAltName = @alt_names\n\n")

	b.WriteString("[ alt_names ]\n")
	writeAltNames(&b, leaf)

	return b.String(), nil
}

func writeDN(b *strings.Builder, p Profile) {
	attrs := []struct{ key, value string }{
		{"C", p.Subject.Country},
		{"ST", p.Subject.State},
		{"L", p.Subject.Locality},
		{"O", p.Subject.Organization},
		{"OU", p.Subject.OrganizationalUnit},
		{"CN", p.Subject.CommonName},
	}
	for _, a := range attrs {
		if a.value != "" {
			fmt.Fprintf(b, "%s = %s\n", a.key, a.value)
		}
	}
}

func writeAltNames(b *strings.Builder, p Profile) {
	for i, name := range p.DNSNames {
		fmt.Fprintf(b, "DNS.%d = %s\n", i+1, name)
	}
	for i, ip := range p.IPAddresses {
		fmt.Fprintf(b, "IP.%d = %s\n", i+1, ip.String())
	}
}
