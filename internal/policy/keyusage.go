package policy

import (
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/wolfeidau/certchain/internal/pki"
)

// keyUsageNames lists key usages in the order openssl prints them.
var keyUsageNames = []struct {
	name  string
	usage x509.KeyUsage
}{
	{"digitalSignature", x509.KeyUsageDigitalSignature},
	{"nonRepudiation", x509.KeyUsageContentCommitment},
	{"keyEncipherment", x509.KeyUsageKeyEncipherment},
	{"dataEncipherment", x509.KeyUsageDataEncipherment},
	{"keyAgreement", x509.KeyUsageKeyAgreement},
	{"keyCertSign", x509.KeyUsageCertSign},
	{"cRLSign", x509.KeyUsageCRLSign},
	{"encipherOnly", x509.KeyUsageEncipherOnly},
	{"decipherOnly", x509.KeyUsageDecipherOnly},
}

// FormatKeyUsage renders a key usage bit set as an openssl extension value.
func FormatKeyUsage(usage x509.KeyUsage) string {
	var names []string
	for _, ku := range keyUsageNames {
		if usage&ku.usage != 0 {
			names = append(names, ku.name)
		}
	}
	return strings.Join(names, ", ")
}

// ParseKeyUsage parses an openssl keyUsage value such as
// "critical, digitalSignature, keyEncipherment".
func ParseKeyUsage(value string) (x509.KeyUsage, error) {
	var usage x509.KeyUsage

	for _, token := range splitList(value) {
		if strings.EqualFold(token, "critical") {
			continue
		}

		found := false
		for _, ku := range keyUsageNames {
			if strings.EqualFold(token, ku.name) {
				usage |= ku.usage
				found = true
				break
			}
		}

		if !found {
			return 0, fmt.Errorf("%w: unknown key usage %q", pki.ErrConfig, token)
		}
	}

	if usage == 0 {
		return 0, fmt.Errorf("%w: empty key usage", pki.ErrConfig)
	}

	return usage, nil
}

// parseBasicConstraints reports whether an openssl basicConstraints value marks a CA.
func parseBasicConstraints(value string) (bool, error) {
	isCA := false
	seen := false

	for _, token := range splitList(value) {
		key, val, ok := strings.Cut(token, ":")
		if !ok {
			if strings.EqualFold(token, "critical") {
				continue
			}
			return false, fmt.Errorf("%w: invalid basicConstraints entry %q", pki.ErrConfig, token)
		}

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "ca":
			switch strings.ToLower(strings.TrimSpace(val)) {
			case "true":
				isCA = true
			case "false":
				isCA = false
			default:
				return false, fmt.Errorf("%w: invalid CA flag %q", pki.ErrConfig, val)
			}
			seen = true
		case "pathlen":
			// path length is not constrained for a two level chain
		default:
			return false, fmt.Errorf("%w: invalid basicConstraints entry %q", pki.ErrConfig, token)
		}
	}

	if !seen {
		return false, fmt.Errorf("%w: basicConstraints must set CA", pki.ErrConfig)
	}

	return isCA, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
