package format

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatErrorWithStack(t *testing.T) {
	msg, err := Format(Input{
		Type:  TypeError,
		Title: "Boom",
		Stack: "Error: x\nat f\nat g\nat h\nat i",
	})
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "<b>❌ Boom</b>")
	assert.Contains(t, msg.Text, "<pre><code>Error: x\nat f\nat g</code></pre>")
	assert.NotContains(t, msg.Text, "at h")
	assert.False(t, strings.HasPrefix(msg.Text, "#"), "no tag line expected")
	assert.False(t, msg.Truncated)
}

func TestFormatLayoutOrder(t *testing.T) {
	msg, err := Format(Input{
		Type:        TypeWarning,
		Title:       "Disk <90%>",
		Description: "a & b",
		Tags:        []string{"##prod env", " api"},
		URL:         "https://x.test/?a=1&b=2",
		Stack:       "\r\n\r\nline1\r\nline2",
	})
	require.NoError(t, err)
	want := strings.Join([]string{
		"#prodenv #api",
		"<b>⚠️ Disk &lt;90%&gt;</b>",
		"a &amp; b",
		"<b>Url: https://x.test/?a=1&amp;b=2</b>",
		"<b>stack</b>\n<pre><code>line1\nline2</code></pre>",
	}, "\n\n")
	assert.Equal(t, want, msg.Text)
}

func TestFormatValidation(t *testing.T) {
	_, err := Format(Input{Type: "fatal", Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = Format(Input{Type: TypeInfo})
	assert.ErrorIs(t, err, ErrTitleRequired)
}

func TestEmojiByType(t *testing.T) {
	for typ, want := range map[Type]string{
		TypeInfo: "ℹ️", TypeSuccess: "✅", TypeWarning: "⚠️", TypeError: "❌",
	} {
		msg, err := Format(Input{Type: typ, Title: "t"})
		require.NoError(t, err)
		assert.Equal(t, "<b>"+want+" t</b>", msg.Text)
	}
}

func TestHashtag(t *testing.T) {
	assert.Equal(t, "#AutoCapture", Hashtag("AutoCapture"))
	assert.Equal(t, "#abc", Hashtag("  ###a b\tc "))
	assert.Equal(t, "", Hashtag(" # "))
	assert.Equal(t, "#a #b", Hashtags([]string{"a", "", "#b"}))
}

func TestFormatClipsToLimit(t *testing.T) {
	msg, err := Format(Input{
		Type:        TypeInfo,
		Title:       "long",
		Description: strings.Repeat("x", 2*MaxMessageLen),
	})
	require.NoError(t, err)
	assert.True(t, msg.Truncated)
	assert.Equal(t, Limit, Units(msg.Text))
	assert.True(t, strings.HasSuffix(msg.Text, Ellipsis))
	assert.Greater(t, Units(msg.Unclipped), Limit)
}

func TestFormatNeverExceedsLimit(t *testing.T) {
	inputs := []Input{
		{Type: TypeError, Title: strings.Repeat("<", 3000), Description: strings.Repeat("&", 3000)},
		{Type: TypeError, Title: "t", Stack: strings.Repeat("я", 5000)},
		{Type: TypeError, Title: "t", Tags: []string{strings.Repeat("z", 5000)}},
	}
	for _, in := range inputs {
		msg, err := Format(in)
		require.NoError(t, err)
		assert.LessOrEqual(t, Units(msg.Text), Limit)
	}
}

func TestFormatClipsAstralDescription(t *testing.T) {
	msg, err := Format(Input{
		Type:        TypeInfo,
		Title:       "t",
		Description: strings.Repeat("😀", 3000),
	})
	require.NoError(t, err)
	assert.True(t, msg.Truncated)
	assert.LessOrEqual(t, Units(msg.Text), Limit)
	assert.True(t, utf8.ValidString(msg.Text))
	assert.True(t, strings.HasSuffix(msg.Text, "😀"+Ellipsis))
}

func TestUnits(t *testing.T) {
	assert.Equal(t, 3, Units("abc"))
	assert.Equal(t, 2, Units("😀"))
	assert.Equal(t, 1, Units("я"))
	assert.Equal(t, "a😀", PrefixUnits("a😀b", 3))
	assert.Equal(t, "a", PrefixUnits("a😀b", 2))
	assert.Equal(t, "", PrefixUnits("😀", 1))
}

func TestClipClosesOpenTags(t *testing.T) {
	s := "<b>t</b>\n\n<b>stack</b>\n<pre><code>" + strings.Repeat("a", 100) + "</code></pre>"
	out := Clip(s, 50)
	assert.LessOrEqual(t, Units(out), 50)
	assert.True(t, strings.HasSuffix(out, Ellipsis+"</code></pre>"), out)
}

func TestClipBacksOffPartialEntity(t *testing.T) {
	s := strings.Repeat("a", 8) + "&amp;" + strings.Repeat("b", 10)
	out := Clip(s, 11)
	assert.Equal(t, strings.Repeat("a", 8)+Ellipsis, out)
}

func TestEscapeIsSinglePass(t *testing.T) {
	assert.Equal(t, "&lt;a&gt; &amp; &amp;amp;", Escape("<a> & &amp;"))
	// Not idempotent: formatting must run once per raw input.
	assert.Equal(t, "&amp;amp;", Escape(Escape("&")))
}

func TestFirstLines(t *testing.T) {
	assert.Equal(t, "a\nb", FirstLines("a\n\nb\nc", 2))
	assert.Equal(t, "", FirstLines("\n\n", 3))
}
