package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"

	"tempinbox/backend/internal/domain"
)

// NoContentPlaceholder 无法提取正文时保存的内容
const NoContentPlaceholder = "Unable to extract content"

// maxPartDepth 限制 multipart 嵌套层数
const maxPartDepth = 32

func init() {
	message.CharsetReader = charsetReader
}

// Part 邮件正文树的节点，只能是 Leaf 或 Multipart。
type Part interface {
	isPart()
}

// Leaf 单个非 multipart 部分。
type Leaf struct {
	MediaType  string
	Text       string
	Attachment bool
}

// Multipart multipart 容器，子部分保持文档顺序。
type Multipart struct {
	MediaType string
	Parts     []Part
}

func (Leaf) isPart()      {}
func (Multipart) isPart() {}

// Parsed 解析后的邮件
type Parsed struct {
	Subject    string
	From       []string
	Recipients []string // To、Cc、Bcc 头中的地址，按出现顺序
	Body       Part
}

// ParseMessage 解析原始邮件，生成正文树。
//
// 未知字符集或传输编码不视为错误，对应部分按原始字节保留。
func ParseMessage(raw []byte) (*Parsed, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !tolerable(err) {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	header := mail.Header{Header: entity.Header}
	parsed := &Parsed{}
	if subject, err := header.Subject(); err == nil {
		parsed.Subject = subject
	} else {
		parsed.Subject = header.Get("Subject")
	}
	parsed.From = addresses(header, "From")
	for _, key := range []string{"To", "Cc", "Bcc"} {
		parsed.Recipients = append(parsed.Recipients, addresses(header, key)...)
	}

	body, err := buildPart(entity, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	parsed.Body = body
	return parsed, nil
}

// ExtractBody 从正文树中提取可展示的内容。
//
// 单个文本部分原样返回；multipart 中遇到 text/html 立即返回，
// text/plain 按顺序拼接，嵌套 multipart 的结果追加后继续遍历。
func ExtractBody(p Part) string {
	var text string
	switch v := p.(type) {
	case Leaf:
		if !v.Attachment && strings.HasPrefix(v.MediaType, "text/") {
			text = v.Text
		}
	case Multipart:
		text = walkMultipart(v)
	}
	if text == "" {
		return NoContentPlaceholder
	}
	return text
}

func walkMultipart(m Multipart) string {
	var b strings.Builder
	for _, part := range m.Parts {
		switch v := part.(type) {
		case Leaf:
			if v.Attachment {
				continue
			}
			switch v.MediaType {
			case "text/html":
				return v.Text
			case "text/plain":
				b.WriteString(v.Text)
			}
		case Multipart:
			b.WriteString(walkMultipart(v))
		}
	}
	return b.String()
}

func buildPart(entity *message.Entity, depth int) (Part, error) {
	mediaType, _, err := entity.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}
	mediaType = strings.ToLower(mediaType)

	if mr := entity.MultipartReader(); mr != nil {
		if depth >= maxPartDepth {
			return nil, errors.New("multipart nesting too deep")
		}
		container := Multipart{MediaType: mediaType}
		for {
			child, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil && !tolerable(err) {
				return nil, err
			}
			part, err := buildPart(child, depth+1)
			if err != nil {
				return nil, err
			}
			container.Parts = append(container.Parts, part)
		}
		return container, nil
	}

	leaf := Leaf{MediaType: mediaType, Attachment: isAttachment(entity.Header)}
	if leaf.Attachment || !strings.HasPrefix(mediaType, "text/") {
		// 附件与非文本内容不参与正文提取，直接丢弃
		_, _ = io.Copy(io.Discard, entity.Body)
		return leaf, nil
	}
	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, err
	}
	leaf.Text = string(body)
	return leaf, nil
}

func isAttachment(h message.Header) bool {
	disposition, _, err := h.ContentDisposition()
	return err == nil && strings.EqualFold(disposition, "attachment")
}

func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		// 非标准地址头按逗号切分兜底
		var out []string
		for _, field := range strings.Split(h.Get(key), ",") {
			if addr := domain.NormalizeAddress(field); addr != "" {
				out = append(out, addr)
			}
		}
		return out
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.Address != "" {
			out = append(out, a.Address)
		}
	}
	return out
}

func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// charsetReader 将常见非 UTF-8 字符集转换为 UTF-8
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc := charsetEncoding(strings.ToLower(strings.TrimSpace(charset)))
	if enc == nil {
		return nil, fmt.Errorf("unhandled charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}

// charsetEncoding 根据字符集名称返回编码器
func charsetEncoding(charset string) encoding.Encoding {
	switch charset {
	case "gb2312", "gbk":
		return simplifiedchinese.GBK
	case "gb18030":
		return simplifiedchinese.GB18030
	case "big5":
		return traditionalchinese.Big5
	case "shift_jis", "sjis":
		return japanese.ShiftJIS
	case "euc-jp":
		return japanese.EUCJP
	case "iso-2022-jp":
		return japanese.ISO2022JP
	case "euc-kr", "ks_c_5601-1987":
		return korean.EUCKR
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil
	}
	return enc
}
