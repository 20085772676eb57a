package placeholder_test

import (
	"context"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/htmlphpfmt/pkg/diff"
	"github.com/walteh/htmlphpfmt/pkg/placeholder"
	"github.com/walteh/htmlphpfmt/pkg/position"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/net/html"
)

var (
	tagTokenRegex       = regexp.MustCompile(`^<php_\d+_* />$`)
	attributeTokenRegex = regexp.MustCompile(`^_php_\d+_*$`)
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(data)
}

func TestTokenize_NoRegions(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"plain html", "<div class=\"a\">hello</div>\n"},
		{"xml declaration is not php", `<?xml version="1.0"?><root/>`},
		{"short open tag is not php", "<p><? echo 1 ?></p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res, err := placeholder.Tokenize(ctx, tt.doc)
			require.NoError(t, err)

			assert.Equal(t, tt.doc, res.Placeholder)
			assert.Equal(t, 0, res.Map.Len())
			assert.Empty(t, res.Tokens)

			restored := placeholder.Restore(ctx, res.Placeholder, res.Map)
			assert.Equal(t, tt.doc, restored.Text)
			assert.NoError(t, restored.Err())
		})
	}
}

func TestTokenize_ContextClassification(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		want        []placeholder.ContextKind
		placeholder string
	}{
		{
			name:        "attribute value then text content",
			doc:         `<a href="<?= x ?>">text</a>`,
			want:        []placeholder.ContextKind{placeholder.InAttribute},
			placeholder: `<a href="_php_0__">text</a>`,
		},
		{
			name:        "between tags",
			doc:         `<p><?= $x ?></p>`,
			want:        []placeholder.ContextKind{placeholder.Standalone},
			placeholder: `<p><php_0__ /></p>`,
		},
		{
			name: "attribute and between tags",
			doc:  `<a href="<?= x ?>"><?= $label ?></a>`,
			want: []placeholder.ContextKind{placeholder.InAttribute, placeholder.Standalone},
		},
		{
			name: "region at position zero",
			doc:  `<?php echo 1; ?><div></div>`,
			want: []placeholder.ContextKind{placeholder.Standalone},
		},
		{
			name: "region at end of document",
			doc:  `<div></div><?php echo 1; ?>`,
			want: []placeholder.ContextKind{placeholder.Standalone},
		},
		{
			name: "bare region in tag attribute list",
			doc:  `<a <?php post_class(); ?> data-x="1">`,
			want: []placeholder.ContextKind{placeholder.InAttribute},
		},
		{
			name: "quoted '>' does not close the tag",
			doc:  `<a title="a > b" href="<?= $u ?>">x</a>`,
			want: []placeholder.ContextKind{placeholder.InAttribute},
		},
		{
			name: "region markup characters do not change state",
			doc:  `<p><?php echo "<a href='"; ?><?= $x ?></p>`,
			want: []placeholder.ContextKind{placeholder.Standalone, placeholder.Standalone},
		},
		{
			name: "region containing '>' inside a tag",
			doc:  `<input value="<?= $a > 1 ? 'y' : 'n' ?>" <?= $b ?>>`,
			want: []placeholder.ContextKind{placeholder.InAttribute, placeholder.InAttribute},
		},
		{
			name: "dynamic tag name",
			doc:  `<<?= $tag ?> class="x">`,
			want: []placeholder.ContextKind{placeholder.InAttribute},
		},
		{
			name: "script content",
			doc:  `<script>var a = <?= json_encode($a) ?>;</script><?= $b ?>`,
			want: []placeholder.ContextKind{placeholder.InRawText, placeholder.Standalone},
		},
		{
			name: "comment content",
			doc:  `<!-- <?php echo "x"; ?> --><?= $b ?>`,
			want: []placeholder.ContextKind{placeholder.InRawText, placeholder.Standalone},
		},
		{
			name:        "quote inside an unquoted value is literal",
			doc:         `<img alt=don't src="a"><p><?= $y ?></p>`,
			want:        []placeholder.ContextKind{placeholder.Standalone},
			placeholder: `<img alt=don't src="a"><p><php_0__ /></p>`,
		},
		{
			name: "quote inside an attribute name is literal",
			doc:  `<p data-"x><?= $z ?></p>`,
			want: []placeholder.ContextKind{placeholder.Standalone},
		},
		{
			name: "whitespace between '=' and the opening quote",
			doc:  `<a href= '<?= $u ?>'><?= $l ?></a>`,
			want: []placeholder.ContextKind{placeholder.InAttribute, placeholder.Standalone},
		},
		{
			name: "less-than in text does not open a tag",
			doc:  `<p>1 < 2 <?= $x ?></p>`,
			want: []placeholder.ContextKind{placeholder.Standalone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := placeholder.Tokenize(context.Background(), tt.doc)
			require.NoError(t, err)

			got := make([]placeholder.ContextKind, 0, len(res.Tokens))
			for _, tok := range res.Tokens {
				got = append(got, tok.Region.Context)
				switch tok.Region.Context {
				case placeholder.Standalone:
					assert.Equal(t, placeholder.TagShape, tok.Shape)
					assert.Regexp(t, tagTokenRegex, tok.Rendered)
				default:
					assert.Equal(t, placeholder.AttributeShape, tok.Shape)
					assert.Regexp(t, attributeTokenRegex, tok.Rendered)
				}
			}
			assert.Equal(t, tt.want, got)

			if tt.placeholder != "" {
				assert.Equal(t, tt.placeholder, res.Placeholder)
			}
		})
	}
}

func TestTokenize_Fixtures(t *testing.T) {
	tests := []struct {
		fixture string
		want    []placeholder.ContextKind
	}{
		{
			fixture: "card-attribute-bug.php",
			want: []placeholder.ContextKind{
				placeholder.InAttribute,
				placeholder.InAttribute,
				placeholder.Standalone,
				placeholder.Standalone,
				placeholder.Standalone,
			},
		},
		{
			fixture: "basic-html.php",
			want: []placeholder.ContextKind{
				placeholder.Standalone,
				placeholder.InAttribute,
				placeholder.Standalone,
				placeholder.Standalone,
				placeholder.Standalone,
				placeholder.InAttribute,
				placeholder.Standalone,
				placeholder.Standalone,
				placeholder.Standalone,
				placeholder.InRawText,
				placeholder.InRawText,
				placeholder.Standalone,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			ctx := context.Background()
			doc := readFixture(t, tt.fixture)

			res, err := placeholder.Tokenize(ctx, doc)
			require.NoError(t, err)

			got := make([]placeholder.ContextKind, 0, len(res.Tokens))
			for i, tok := range res.Tokens {
				got = append(got, tok.Region.Context)
				assert.Equal(t, i, tok.ID, "ids follow discovery order")
				assert.Contains(t, res.Placeholder, tok.Rendered, "all tokens exist")
				assert.Equal(t, doc[tok.Region.Offset:tok.Region.End()], tok.Region.Text)
			}
			if d := diff.DiffExportedOnly(tt.want, got); d != "" {
				t.Errorf("unexpected contexts: %s", d)
			}

			assert.NotContains(t, res.Placeholder, "<?")

			restored := placeholder.Restore(ctx, res.Placeholder, res.Map)
			require.NoError(t, restored.Err())
			assert.Equal(t, doc, restored.Text)
		})
	}
}

func TestTokenize_OpenEndedRegion(t *testing.T) {
	ctx := context.Background()
	doc := "<?php echo $x;"

	res, err := placeholder.Tokenize(ctx, doc)
	require.NoError(t, err)

	require.Len(t, res.Tokens, 1)
	tok := res.Tokens[0]
	assert.False(t, tok.Region.Terminated)
	assert.Equal(t, doc, tok.Region.Text)
	assert.Equal(t, placeholder.Standalone, tok.Region.Context)
	assert.Equal(t, tok.Rendered, res.Placeholder)

	restored := placeholder.Restore(ctx, res.Placeholder, res.Map)
	assert.Equal(t, doc, restored.Text)
}

func TestTokenize_OpenEndedRegionInsideTag(t *testing.T) {
	ctx := context.Background()
	doc := "<div>ok</div>\n<a href=\"<?= $url"

	res, err := placeholder.Tokenize(ctx, doc)
	require.NoError(t, err)

	require.Len(t, res.Tokens, 1)
	assert.False(t, res.Tokens[0].Region.Terminated)
	assert.Equal(t, placeholder.InAttribute, res.Tokens[0].Region.Context)
	assert.Equal(t, "<?= $url", res.Tokens[0].Region.Text)

	restored := placeholder.Restore(ctx, res.Placeholder, res.Map)
	assert.Equal(t, doc, restored.Text)
}

func TestTokenize_BackToBackRegions(t *testing.T) {
	ctx := context.Background()
	doc := "<p><?= $a ?><?= $b ?><?php echo $c ?></p>"

	res, err := placeholder.Tokenize(ctx, doc)
	require.NoError(t, err)
	require.Len(t, res.Tokens, 3)

	regions := res.Regions()
	for i := 1; i < len(regions); i++ {
		assert.False(t, regions[i].HasRangeOverlapWith(regions[i-1].Span))
		assert.Equal(t, regions[i-1].End(), regions[i].Offset)
	}

	restored := placeholder.Restore(ctx, res.Placeholder, res.Map)
	assert.Equal(t, doc, restored.Text)
}

func TestTokenize_LengthCap(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantLen int
	}{
		{
			name:    "500 character region is capped",
			doc:     "<div><?php " + strings.Repeat("x", 491) + " ?></div>",
			wantLen: 80,
		},
		{
			name:    "region longer than the minimal token is matched",
			doc:     "<div><?php echo $name; ?></div>",
			wantLen: len("<?php echo $name; ?>"),
		},
		{
			name:    "short region keeps the minimal tag token",
			doc:     "<?php",
			wantLen: len("<php_0__ />"),
		},
		{
			name:    "short attribute region keeps the minimal attribute token",
			doc:     "<a <?=x?>>",
			wantLen: len("_php_0__"),
		},
		{
			name:    "multi-byte characters are measured as characters",
			doc:     "<p><?= 'héllo wörld ✓' ?></p>",
			wantLen: len([]rune("<?= 'héllo wörld ✓' ?>")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := placeholder.Tokenize(context.Background(), tt.doc)
			require.NoError(t, err)
			require.Len(t, res.Tokens, 1)

			tok := res.Tokens[0]
			assert.Len(t, tok.Rendered, tt.wantLen)
			assert.LessOrEqual(t, len(tok.Rendered), placeholder.DefaultMaxWidth)
		})
	}
}

func TestTokenize_TokenUniqueness(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 250; i++ {
		sb.WriteString(`<li class="<?= $c ?>"><?= $i ?></li>`)
	}
	doc := sb.String()

	res, err := placeholder.Tokenize(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, res.Tokens, 500)
	assert.Equal(t, 500, res.Map.Len())

	seen := make(map[string]bool)
	for _, k := range res.Map.Keys() {
		assert.False(t, seen[k], "duplicate token %q", k)
		seen[k] = true
	}
}

func TestTokenize_TokensAreValidMarkup(t *testing.T) {
	res, err := placeholder.Tokenize(context.Background(), `<a href="<?= $u ?>"><?php echo "a long region"; ?></a>`)
	require.NoError(t, err)
	require.Len(t, res.Tokens, 2)

	attr := res.Tokens[0].Rendered
	z := html.NewTokenizer(strings.NewReader(`<a href=` + attr + `>`))
	require.Equal(t, html.StartTagToken, z.Next())
	a := z.Token()
	require.Len(t, a.Attr, 1)
	assert.Equal(t, attr, a.Attr[0].Val, "attribute token survives unquoted")

	tag := res.Tokens[1].Rendered
	z = html.NewTokenizer(strings.NewReader(tag))
	require.Equal(t, html.SelfClosingTagToken, z.Next())
	assert.Equal(t, strings.TrimSuffix(strings.TrimPrefix(tag, "<"), " />"), z.Token().Data)
}

func TestTokenize_Options(t *testing.T) {
	ctx := context.Background()

	opts, err := placeholder.NewOptions(
		placeholder.WithPrefix("tpl-"),
		placeholder.WithFiller('-'),
		placeholder.WithMaxWidth(20),
	)
	require.NoError(t, err)

	doc := `<div><?php echo "` + strings.Repeat("y", 40) + `"; ?></div>`
	res, err := opts.Tokenize(ctx, doc)
	require.NoError(t, err)
	require.Len(t, res.Tokens, 1)
	assert.Equal(t, "<tpl-0__--------- />", res.Tokens[0].Rendered)

	restored := placeholder.Restore(ctx, res.Placeholder, res.Map)
	assert.Equal(t, doc, restored.Text)
}

func TestNewOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts []placeholder.Option
	}{
		{"empty prefix", []placeholder.Option{placeholder.WithPrefix("")}},
		{"prefix starting with digit", []placeholder.Option{placeholder.WithPrefix("1php")}},
		{"prefix with markup", []placeholder.Option{placeholder.WithPrefix("p<")}},
		{"alphanumeric filler", []placeholder.Option{placeholder.WithFiller('x')}},
		{"filler breaking attributes", []placeholder.Option{placeholder.WithFiller('"')}},
		{"width too small", []placeholder.Option{placeholder.WithMaxWidth(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := placeholder.NewOptions(tt.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, placeholder.ErrInvalidOptions))
		})
	}
}

func TestTokenize_IDTooWide(t *testing.T) {
	opts, err := placeholder.NewOptions(placeholder.WithMaxWidth(11))
	require.NoError(t, err)

	// the eleventh token needs a two digit id, which no longer fits
	doc := strings.Repeat("<p><?= $x ?></p>", 11)
	_, err = opts.Tokenize(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, placeholder.ErrTokenTooWide))
}

func TestResult_Regions(t *testing.T) {
	doc := "<b><?= $a ?></b>"
	res, err := placeholder.Tokenize(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, []placeholder.Region{{
		Span:       position.NewSpan("<?= $a ?>", 3),
		Context:    placeholder.Standalone,
		Terminated: true,
	}}, res.Regions())
}

func TestTokenize_DocumentAlreadyContainsTokenText(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		placeholder string
	}{
		{
			name:        "attribute token in text",
			doc:         `<a href="<?= $x ?>">_php_0___</a>`,
			placeholder: `<a href="_php_x1_0__">_php_0___</a>`,
		},
		{
			name:        "tag token in text",
			doc:         `<p><?= 1 ?></p><php_0__ />`,
			placeholder: `<p><php_x1_0__ /></p><php_0__ />`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res, err := placeholder.Tokenize(ctx, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.placeholder, res.Placeholder)

			restored := placeholder.Restore(ctx, res.Placeholder, res.Map)
			require.NoError(t, restored.Err())
			assert.Equal(t, tt.doc, restored.Text)
			assert.Equal(t, 1, restored.Replaced)
		})
	}
}
