// Package truststore writes the system-wide p11-kit trust object store
// holding the deployment's CA certificates, and drives the trust database
// refresh.
package truststore

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"strings"
)

// ekuOID is the X.509 extended key usage extension (2.5.29.37).
var ekuOID = asn1.ObjectIdentifier{2, 5, 29, 37}

// TrustedCert is one authority certificate destined for the trust store.
type TrustedCert struct {
	// Cert is the parsed certificate.
	Cert *x509.Certificate

	// Nickname labels the certificate in the store.
	Nickname string

	// Trusted marks the certificate as explicitly trusted or distrusted.
	// Nil leaves the trust decision to the consumer.
	Trusted *bool
}

// renderObjectStore produces the full p11-kit module file content for the
// given certificates. One certificate stanza is emitted per input; one
// extended-key-usage stanza is emitted per distinct public key, so two
// certificates sharing a key never produce duplicate extension objects.
func renderObjectStore(certs []TrustedCert) (string, error) {
	var b strings.Builder
	b.WriteString("# This file was created by idmd. Do not edit.\n\n")

	hasEKU := make(map[string]bool)
	for _, tc := range certs {
		if tc.Cert == nil {
			return "", fmt.Errorf("truststore: certificate %q is nil", tc.Nickname)
		}

		serialDER, err := asn1.Marshal(tc.Cert.SerialNumber)
		if err != nil {
			return "", fmt.Errorf("truststore: encode serial of %q: %w", tc.Nickname, err)
		}

		label := percentEscape([]byte(tc.Nickname))
		publicKeyInfo := percentEscape(tc.Cert.RawSubjectPublicKeyInfo)

		b.WriteString("[p11-kit-object-v1]\n")
		b.WriteString("class: certificate\n")
		b.WriteString("certificate-type: x-509\n")
		b.WriteString("certificate-category: authority\n")
		fmt.Fprintf(&b, "label: \"%s\"\n", label)
		fmt.Fprintf(&b, "subject: \"%s\"\n", percentEscape(tc.Cert.RawSubject))
		fmt.Fprintf(&b, "issuer: \"%s\"\n", percentEscape(tc.Cert.RawIssuer))
		fmt.Fprintf(&b, "serial-number: \"%s\"\n", percentEscape(serialDER))
		fmt.Fprintf(&b, "x-public-key-info: \"%s\"\n", publicKeyInfo)
		if tc.Trusted != nil {
			if *tc.Trusted {
				b.WriteString("trusted: true\n")
			} else {
				b.WriteString("x-distrusted: true\n")
			}
		}
		b.Write(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: tc.Cert.Raw}))
		b.WriteString("\n")

		eku := ekuValue(tc.Cert)
		if eku != nil && !hasEKU[publicKeyInfo] {
			b.WriteString("[p11-kit-object-v1]\n")
			b.WriteString("class: x-certificate-extension\n")
			fmt.Fprintf(&b, "label: \"ExtendedKeyUsage for %s\"\n", label)
			fmt.Fprintf(&b, "x-public-key-info: \"%s\"\n", publicKeyInfo)
			b.WriteString("object-id: 2.5.29.37\n")
			fmt.Fprintf(&b, "value: \"%s\"\n\n", percentEscape(eku))
			hasEKU[publicKeyInfo] = true
		}
	}

	return b.String(), nil
}

// ekuValue returns the raw DER value of the certificate's extended key
// usage extension, or nil if the certificate has none.
func ekuValue(cert *x509.Certificate) []byte {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(ekuOID) {
			return ext.Value
		}
	}
	return nil
}

// percentEscape escapes data the way p11-kit expects its quoted fields:
// every byte outside the URL-unreserved set and '/' becomes %XX.
func percentEscape(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		switch {
		case c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9',
			c == '_', c == '.', c == '-', c == '~', c == '/':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
