package smtp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempinbox/backend/internal/domain"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMessage_SinglePart(t *testing.T) {
	raw := crlf(`From: "Bank" <noreply@bank.example>
To: abc@tempinbox.local
Subject: =?UTF-8?B?6aqM6K+B56CB?=
Content-Type: text/plain; charset=utf-8

Your code is 123456
`)

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "验证码", parsed.Subject)
	assert.Equal(t, []string{"noreply@bank.example"}, parsed.From)
	assert.Equal(t, []string{"abc@tempinbox.local"}, parsed.Recipients)
	assert.Equal(t, "Your code is 123456\r\n", ExtractBody(parsed.Body))
}

func TestParseMessage_NoContentType(t *testing.T) {
	raw := crlf(`Subject: plain

hello there
`)
	parsed, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, Leaf{MediaType: "text/plain", Text: "hello there\r\n"}, parsed.Body)
	assert.Empty(t, parsed.From)
}

func TestParseMessage_Alternative(t *testing.T) {
	raw := crlf(`From: a@example.com
To: b@tempinbox.local, c@tempinbox.local
Cc: d@tempinbox.local
Subject: alt
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=XYZ

--XYZ
Content-Type: text/plain; charset=utf-8

plain version
--XYZ
Content-Type: text/html; charset=utf-8
Content-Transfer-Encoding: quoted-printable

<p>html =3D version</p>
--XYZ--
`)

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@tempinbox.local", "c@tempinbox.local", "d@tempinbox.local"}, parsed.Recipients)

	container, ok := parsed.Body.(Multipart)
	require.True(t, ok)
	require.Len(t, container.Parts, 2)
	assert.Equal(t, "<p>html = version</p>", strings.TrimSpace(ExtractBody(parsed.Body)))
}

func TestParseMessage_AttachmentSkipped(t *testing.T) {
	raw := crlf(`From: a@example.com
Subject: files
Content-Type: multipart/mixed; boundary=B1

--B1
Content-Type: text/plain

see attached
--B1
Content-Type: text/plain; name="notes.txt"
Content-Disposition: attachment; filename="notes.txt"

secret attachment text
--B1
Content-Type: image/png
Content-Transfer-Encoding: base64

iVBORw0KGgo=
--B1--
`)

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)
	container := parsed.Body.(Multipart)
	require.Len(t, container.Parts, 3)
	assert.True(t, container.Parts[1].(Leaf).Attachment)
	assert.Empty(t, container.Parts[2].(Leaf).Text)
	assert.Equal(t, "see attached", strings.TrimSpace(ExtractBody(parsed.Body)))
}

func TestParseMessage_Charset(t *testing.T) {
	// "你好" 的 GBK 编码
	raw := append(crlf("Subject: gbk\nContent-Type: text/plain; charset=gbk\n\n"), 0xc4, 0xe3, 0xba, 0xc3)

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "你好", ExtractBody(parsed.Body))
}

func TestParseMessage_Malformed(t *testing.T) {
	_, err := ParseMessage([]byte("this is not a header block"))
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name string
		part Part
		want string
	}{
		{
			name: "纯文本",
			part: Leaf{MediaType: "text/plain", Text: "hello"},
			want: "hello",
		},
		{
			name: "单个 html",
			part: Leaf{MediaType: "text/html", Text: "<b>hi</b>"},
			want: "<b>hi</b>",
		},
		{
			name: "非文本单部分",
			part: Leaf{MediaType: "application/pdf"},
			want: NoContentPlaceholder,
		},
		{
			name: "html 优先并丢弃之前的纯文本",
			part: Multipart{Parts: []Part{
				Leaf{MediaType: "text/plain", Text: "a"},
				Leaf{MediaType: "text/html", Text: "<i>b</i>"},
				Leaf{MediaType: "text/plain", Text: "c"},
			}},
			want: "<i>b</i>",
		},
		{
			name: "纯文本按顺序拼接",
			part: Multipart{Parts: []Part{
				Leaf{MediaType: "text/plain", Text: "one "},
				Leaf{MediaType: "image/png"},
				Leaf{MediaType: "text/plain", Text: "two"},
			}},
			want: "one two",
		},
		{
			name: "嵌套结果追加后继续遍历",
			part: Multipart{Parts: []Part{
				Leaf{MediaType: "text/plain", Text: "outer "},
				Multipart{Parts: []Part{
					Leaf{MediaType: "text/html", Text: "<p>inner</p>"},
				}},
				Leaf{MediaType: "text/plain", Text: " tail"},
			}},
			want: "outer <p>inner</p> tail",
		},
		{
			name: "附件不参与",
			part: Multipart{Parts: []Part{
				Leaf{MediaType: "text/html", Text: "<p>x</p>", Attachment: true},
				Leaf{MediaType: "text/plain", Text: "body"},
			}},
			want: "body",
		},
		{
			name: "空 multipart",
			part: Multipart{},
			want: NoContentPlaceholder,
		},
		{
			name: "空文本",
			part: Leaf{MediaType: "text/plain"},
			want: NoContentPlaceholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBody(tt.part))
		})
	}
}
