package policy

import (
	"bufio"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfeidau/certchain/internal/pki"
)

// Default file names read by the fixed-configuration flow.
const (
	OpenSSLConfigFile = "openssl.cnf"
	ExtFileName       = "v3.ext"
)

// OpenSSLConfig is the subset of an openssl req configuration used to issue a chain.
type OpenSSLConfig struct {
	Subject            pki.DistinguishedName
	DefaultBits        int
	SignatureAlgorithm x509.SignatureAlgorithm

	// CAExtensions reports whether a [ v3_ca ] section is present.
	CAExtensions bool

	// RequestDNSNames are the subjectAltName entries from the request extensions.
	RequestDNSNames []string
}

// ExtFile is a parsed openssl x509 extension file applied when signing the leaf.
type ExtFile struct {
	KeyUsage    x509.KeyUsage
	DNSNames    []string
	IPAddresses []net.IP
}

// Apply overrides the extension fields of a leaf profile with those from the file.
func (e *ExtFile) Apply(p Profile) Profile {
	if e.KeyUsage != 0 {
		p.KeyUsage = e.KeyUsage
	}
	if len(e.DNSNames) > 0 || len(e.IPAddresses) > 0 {
		p.DNSNames = e.DNSNames
		p.IPAddresses = e.IPAddresses
	}
	return p
}

// section holds key/value pairs in file order.
type section struct {
	keys   []string
	values map[string]string
}

func (s *section) get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

type document map[string]*section

var numberPrefix = regexp.MustCompile(`^\d+\.`)

// parseDocument reads the line based key = value format with [ section ] headers.
func parseDocument(r io.Reader) (document, error) {
	doc := document{}
	current := &section{values: map[string]string{}}
	doc[""] = current

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("%w: line %d: unterminated section header", pki.ErrConfig, lineNo)
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, fmt.Errorf("%w: line %d: empty section name", pki.ErrConfig, lineNo)
			}
			current = doc[name]
			if current == nil {
				current = &section{values: map[string]string{}}
				doc[name] = current
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected key = value", pki.ErrConfig, lineNo)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key == "" {
			return nil, fmt.Errorf("%w: line %d: empty key", pki.ErrConfig, lineNo)
		}

		if _, exists := current.values[key]; !exists {
			current.keys = append(current.keys, key)
		}
		current.values[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read configuration: %w", pki.ErrConfig, err)
	}

	return doc, nil
}

func parseFile(path string) (document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pki.ErrConfig, err)
	}
	defer f.Close()

	doc, err := parseDocument(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return doc, nil
}

// LoadOpenSSLConfig reads the distinguished name and request settings from an openssl.cnf file.
func LoadOpenSSLConfig(path string) (*OpenSSLConfig, error) {
	doc, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := doc.openSSLConfig()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// ParseOpenSSLConfig is LoadOpenSSLConfig for an in-memory document.
func ParseOpenSSLConfig(r io.Reader) (*OpenSSLConfig, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return nil, err
	}
	return doc.openSSLConfig()
}

func (doc document) openSSLConfig() (*OpenSSLConfig, error) {
	req := doc["req"]
	if req == nil {
		return nil, fmt.Errorf("%w: missing [ req ] section", pki.ErrConfig)
	}

	cfg := &OpenSSLConfig{DefaultBits: pki.DefaultKeyBits}

	if bits, ok := req.get("default_bits"); ok {
		n, err := strconv.Atoi(bits)
		if err != nil || n < 2048 {
			return nil, fmt.Errorf("%w: invalid default_bits %q", pki.ErrConfig, bits)
		}
		cfg.DefaultBits = n
	}

	md, _ := req.get("default_md")
	alg, err := SignatureAlgorithmFor(md)
	if err != nil {
		return nil, err
	}
	cfg.SignatureAlgorithm = alg

	dnName, ok := req.get("distinguished_name")
	if !ok {
		return nil, fmt.Errorf("%w: [ req ] has no distinguished_name", pki.ErrConfig)
	}

	dnSection := doc[dnName]
	if dnSection == nil {
		return nil, fmt.Errorf("%w: missing [ %s ] section", pki.ErrConfig, dnName)
	}

	prompt, _ := req.get("prompt")
	cfg.Subject = parseDN(dnSection, strings.EqualFold(prompt, "no"))

	if err := cfg.Subject.Validate(); err != nil {
		return nil, err
	}

	if v3ca := doc["v3_ca"]; v3ca != nil {
		cfg.CAExtensions = true
		if bc, ok := v3ca.get("basicConstraints"); ok {
			isCA, err := parseBasicConstraints(bc)
			if err != nil {
				return nil, err
			}
			if !isCA {
				return nil, fmt.Errorf("%w: [ v3_ca ] must set CA:true", pki.ErrConfig)
			}
		}
	}

	reqExt := "v3_req"
	if name, ok := req.get("req_extensions"); ok {
		reqExt = name
	}
	if ext := doc[reqExt]; ext != nil {
		if san, ok := ext.get("subjectAltName"); ok {
			dns, _, err := doc.parseSAN(san)
			if err != nil {
				return nil, err
			}
			cfg.RequestDNSNames = dns
		}
	}

	return cfg, nil
}

// parseDN maps openssl attribute names to DN fields. When prompting is
// enabled the *_default values are used, as openssl would offer them.
func parseDN(s *section, noPrompt bool) pki.DistinguishedName {
	var dn pki.DistinguishedName

	for _, key := range s.keys {
		value := s.values[key]
		name := numberPrefix.ReplaceAllString(key, "")

		if !noPrompt {
			base, isDefault := strings.CutSuffix(name, "_default")
			if !isDefault {
				continue
			}
			name = base
		}

		switch name {
		case "C", "countryName":
			dn.Country = value
		case "ST", "stateOrProvinceName":
			dn.State = value
		case "L", "localityName":
			dn.Locality = value
		case "O", "organizationName":
			dn.Organization = value
		case "OU", "organizationalUnitName":
			dn.OrganizationalUnit = value
		case "CN", "commonName":
			dn.CommonName = value
		}
	}

	return dn
}

// LoadExtFile reads the leaf extension file passed to openssl x509 -extfile.
func LoadExtFile(path string) (*ExtFile, error) {
	doc, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	ext, err := doc.extFile()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return ext, nil
}

// ParseExtFile is LoadExtFile for an in-memory document.
func ParseExtFile(r io.Reader) (*ExtFile, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return nil, err
	}
	return doc.extFile()
}

func (doc document) extFile() (*ExtFile, error) {
	root := doc[""]
	ext := &ExtFile{}

	if bc, ok := root.get("basicConstraints"); ok {
		isCA, err := parseBasicConstraints(bc)
		if err != nil {
			return nil, err
		}
		if isCA {
			return nil, fmt.Errorf("%w: leaf extensions must not set CA:true", pki.ErrConfig)
		}
	}

	if ku, ok := root.get("keyUsage"); ok {
		usage, err := ParseKeyUsage(ku)
		if err != nil {
			return nil, err
		}
		ext.KeyUsage = usage
	}

	if san, ok := root.get("subjectAltName"); ok {
		dns, ips, err := doc.parseSAN(san)
		if err != nil {
			return nil, err
		}
		ext.DNSNames = dns
		ext.IPAddresses = ips
	}

	return ext, nil
}

// parseSAN resolves a subjectAltName value, following @section references.
func (doc document) parseSAN(value string) ([]string, []net.IP, error) {
	var (
		dns []string
		ips []net.IP
	)

	add := func(kind, name string) error {
		kind = strings.ToUpper(stripIndex(strings.TrimSpace(kind)))
		name = strings.TrimSpace(name)
		switch kind {
		case "DNS":
			normalized, err := pki.NormalizeDomain(name)
			if err != nil {
				return err
			}
			dns = append(dns, normalized)
		case "IP":
			ip := net.ParseIP(name)
			if ip == nil {
				return fmt.Errorf("%w: invalid IP address %q", pki.ErrConfig, name)
			}
			ips = append(ips, ip)
		default:
			return fmt.Errorf("%w: unsupported subjectAltName type %q", pki.ErrConfig, kind)
		}
		return nil
	}

	for _, entry := range splitList(value) {
		if ref, ok := strings.CutPrefix(entry, "@"); ok {
			s := doc[ref]
			if s == nil {
				return nil, nil, fmt.Errorf("%w: missing [ %s ] section", pki.ErrConfig, ref)
			}
			for _, key := range s.keys {
				if err := add(key, s.values[key]); err != nil {
					return nil, nil, err
				}
			}
			continue
		}

		kind, name, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, nil, fmt.Errorf("%w: invalid subjectAltName entry %q", pki.ErrConfig, entry)
		}
		if err := add(kind, name); err != nil {
			return nil, nil, err
		}
	}

	return dns, ips, nil
}

// stripIndex strips the ".N" index from alt_names keys such as DNS.1.
func stripIndex(key string) string {
	base, _, _ := strings.Cut(key, ".")
	return base
}
