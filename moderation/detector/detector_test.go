package detector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkDetectorBasics(t *testing.T) {
	assert := assert.New(t)

	d := NewLinkDetector(DefaultLinkTokens)

	violating := []string{
		"join here: https://evil.link",
		"http://example.com",
		"HTTPS://EVIL.LINK",
		"HtTpS://mixed.case/path",
		"free stuff at t.me/spamchannel",
		"free stuff at T.ME/spamchannel",
		"check wa.me/123456",
		"bit.ly/abc123 click now",
		"prefix text telegram.me/group suffix text",
	}
	for _, text := range violating {
		assert.True(d.IsViolation(text), "expected violation: %q", text)
	}

	clean := []string{
		"",
		"hello everyone",
		"time to meet at 5pm",
		"the letters h t t p spaced out",
		"httpx is not a scheme we care about... actually it contains no token",
	}
	for _, text := range clean {
		assert.False(d.IsViolation(text), "expected clean: %q", text)
	}
}

func TestLinkDetectorConfiguredTokens(t *testing.T) {
	assert := assert.New(t)

	d := NewLinkDetector([]string{"discord.gg"})
	assert.True(d.IsViolation("come to DISCORD.GG/xyz"))
	assert.False(d.IsViolation("https://example.com"))

	d.AddTokens("https://")
	assert.True(d.IsViolation("https://example.com"))
}

func TestLinkDetectorInvalidUTF8FailsOpen(t *testing.T) {
	assert := assert.New(t)

	d := NewLinkDetector(DefaultLinkTokens)
	bad := string([]byte{0xff, 0xfe, 'h', 't', 't', 'p', ':', '/', '/'})
	assert.False(d.IsViolation(bad))
}

func TestLinkDetectorLoadFromFileJSON(t *testing.T) {
	assert := assert.New(t)

	p := filepath.Join(t.TempDir(), "tokens.json")
	assert.NoError(os.WriteFile(p, []byte(`["grabify.link", "  SHORTURL.AT "]`), 0644))

	d := NewLinkDetector(nil)
	assert.NoError(d.LoadFromFileJSON(p))
	assert.True(d.IsViolation("click grabify.link/x"))
	assert.True(d.IsViolation("see shorturl.at/abc"))
	assert.False(d.IsViolation("no links here"))
}
