package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEndpointURL_RejectsInternalTargets(t *testing.T) {
	for _, raw := range []string{
		"ftp://example.com/evidence.pdf",
		"https:///no-host",
		"https://localhost/evidence.pdf",
		"http://127.0.0.1/evidence.pdf",
		"http://10.0.0.8/evidence.pdf",
		"http://169.254.169.254/latest/meta-data",
		"http://0.0.0.0/",
	} {
		assert.Error(t, ValidateEndpointURL(raw), "url %q", raw)
	}
}

func TestValidateEndpointURL_AcceptsPublicLiteral(t *testing.T) {
	assert.NoError(t, ValidateEndpointURL("https://93.184.216.34/evidence.pdf"))
}
