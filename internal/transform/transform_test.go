package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetUnknownTransformation(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("NotARealTransform")
	require.Error(t, err)
}

func TestRegistry_AllNineRegistered(t *testing.T) {
	r := NewRegistry()
	for _, name := range []Name{
		RemoveComments, RemoveEmptyLines, TrimLines, Deduplicate, Compress,
		RemoveModifiers, Validate, InvertAllow, InsertFinalNewLine,
	} {
		fn, err := r.Get(name)
		require.NoError(t, err)
		require.NotNil(t, fn)
	}
}

func TestRemoveComments(t *testing.T) {
	out := removeComments([]string{"! comment", "||example.com^", "# hash"})
	assert.Equal(t, []string{"||example.com^"}, out.Rules)
	assert.Len(t, out.Diagnostics, 2)
}

func TestRemoveEmptyLines(t *testing.T) {
	out := removeEmptyLines([]string{"a", "", "  ", "b"})
	assert.Equal(t, []string{"a", "b"}, out.Rules)
}

func TestTrimLines(t *testing.T) {
	out := trimLines([]string{"  a  ", "b"})
	assert.Equal(t, []string{"a", "b"}, out.Rules)
}

func TestDeduplicate_StableKeepsFirst(t *testing.T) {
	out := deduplicate([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, out.Rules)
}

func TestDeduplicate_CaseSensitive(t *testing.T) {
	out := deduplicate([]string{"Example.com", "example.com"})
	assert.Equal(t, []string{"Example.com", "example.com"}, out.Rules)
}

func TestCompress_HostRuleSubsumedByNetworkRule(t *testing.T) {
	out := compress([]string{"||ads.example.com^", "ads.example.com"})
	assert.Equal(t, []string{"||ads.example.com^"}, out.Rules)
}

func TestCompress_PreservesOrderOfKept(t *testing.T) {
	out := compress([]string{"||a.com^", "||b.com^"})
	assert.Equal(t, []string{"||a.com^", "||b.com^"}, out.Rules)
}

func TestRemoveModifiers_DropsUnsupportedKeepsSupported(t *testing.T) {
	out := removeModifiers([]string{"||example.com^$third-party,unsupported-mod"})
	require.Len(t, out.Rules, 1)
	assert.Equal(t, "||example.com^$third-party", out.Rules[0])
}

func TestRemoveModifiers_BareDomainSurvivesFullStrip(t *testing.T) {
	out := removeModifiers([]string{"||example.com^$unsupported-mod"})
	require.Len(t, out.Rules, 1)
	assert.Equal(t, "||example.com^", out.Rules[0])
}

func TestValidate_DropsInvalidRules(t *testing.T) {
	out := validate([]string{"||example.com^", "||^"})
	assert.Equal(t, []string{"||example.com^"}, out.Rules)
	assert.Len(t, out.Diagnostics, 1)
}

func TestInvertAllow_ReplacesExceptionWithBlockingRule(t *testing.T) {
	out := invertAllow([]string{"@@||example.com^", "||other.com^"})
	assert.Equal(t, []string{"||example.com^", "||other.com^"}, out.Rules)
}

func TestInsertFinalNewLine_AppendsEmptyLine(t *testing.T) {
	out := insertFinalNewLine([]string{"a", "b"})
	assert.Equal(t, []string{"a", "b", ""}, out.Rules)
}

func TestRegistry_ApplyChainsInOrder(t *testing.T) {
	r := NewRegistry()
	out, err := r.Apply(
		[]Name{RemoveComments, RemoveEmptyLines, TrimLines, Deduplicate},
		[]string{"! comment", "  a  ", "", "a", "b"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Rules)
}
