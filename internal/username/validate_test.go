package username

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alice", Normalize("@Alice"))
	assert.Equal(t, "alice", Normalize("  alice "))
	assert.Equal(t, "bob_99", Normalize("@BOB_99"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "alice", false},
		{"digits", "m4ria", false},
		{"underscore and hyphen", "a_b-c", false},
		{"min length", "abc", false},
		{"max length", strings.Repeat("a", 20), false},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 21), true},
		{"uppercase not normalized", "Alice", true},
		{"leading hyphen", "-alice", true},
		{"spaces", "al ice", true},
		{"unicode", "ålice", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeMessage_StripsScriptContents(t *testing.T) {
	assert.Equal(t, "Hello", SanitizeMessage(`<script>alert(1)</script>Hello`))
	assert.Equal(t, "Hello", SanitizeMessage(`<style>body{color:red}</style>Hello`))
	assert.Equal(t, "bold thanks", SanitizeMessage(`<b>bold</b> thanks`))

	out := SanitizeMessage(`<SCRIPT type="text/javascript">steal()</SCRIPT>ok`)
	assert.Equal(t, "ok", out)
	assert.NotContains(t, out, "steal")
	assert.NotContains(t, out, "<")
}

func TestSanitizeMessage_TruncatesTo200(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := SanitizeMessage(long)
	require.Len(t, []rune(got), MaxMessageLen)

	// Truncation counts runes, not bytes.
	wide := strings.Repeat("é", 300)
	assert.Len(t, []rune(SanitizeMessage(wide)), MaxMessageLen)
}

func TestSanitizeMessage_TrimsWhitespace(t *testing.T) {
	assert.Equal(t, "thanks!", SanitizeMessage("  thanks!  \n"))
	assert.Equal(t, "", SanitizeMessage("   "))
}

func TestValidateTipMessage(t *testing.T) {
	assert.NoError(t, ValidateTipMessage("thanks for the coffee"))
	assert.NoError(t, ValidateTipMessage(strings.Repeat("a", 200)))
	assert.Error(t, ValidateTipMessage(strings.Repeat("a", 201)))
}
