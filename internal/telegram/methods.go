package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/h2non/filetype"
)

// MaxCaptionLength is the Bot API limit for media captions.
const MaxCaptionLength = 1024

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", jsonRequest(struct{}{}), &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetChat returns full information about a chat, including its linked
// discussion group when it is a channel.
func (c *Client) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var chat Chat
	if err := c.call(ctx, "getChat", jsonRequest(map[string]any{"chat_id": chatID}), &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

type sendMessageRequest struct {
	ChatID              string           `json:"chat_id"`
	Text                string           `json:"text"`
	ReplyParameters     *ReplyParameters `json:"reply_parameters,omitempty"`
	DisableNotification bool             `json:"disable_notification,omitempty"`
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, chatID, text string, opts SendOptions) (Message, error) {
	req := sendMessageRequest{
		ChatID:              chatID,
		Text:                text,
		ReplyParameters:     opts.ReplyTo,
		DisableNotification: opts.Silent,
	}

	var msg Message
	if err := c.call(ctx, "sendMessage", jsonRequest(req), &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// SendPhoto uploads a photo. Telegram recompresses it.
func (c *Client) SendPhoto(ctx context.Context, chatID, path, caption string, opts SendOptions) (Message, error) {
	return c.sendFile(ctx, "sendPhoto", MediaPhoto, chatID, path, caption, opts)
}

// SendVideo uploads a video.
func (c *Client) SendVideo(ctx context.Context, chatID, path, caption string, opts SendOptions) (Message, error) {
	return c.sendFile(ctx, "sendVideo", MediaVideo, chatID, path, caption, opts)
}

// SendDocument uploads a file as is.
func (c *Client) SendDocument(ctx context.Context, chatID, path, caption string, opts SendOptions) (Message, error) {
	return c.sendFile(ctx, "sendDocument", MediaDocument, chatID, path, caption, opts)
}

func (c *Client) sendFile(ctx context.Context, method, field, chatID, path, caption string, opts SendOptions) (Message, error) {
	build := func() (io.Reader, string, error) {
		form := newForm()
		form.field("chat_id", chatID)
		if caption != "" {
			form.field("caption", caption)
		}
		if err := form.options(opts); err != nil {
			return nil, "", err
		}
		if err := form.file(field, path); err != nil {
			return nil, "", err
		}
		return form.finish()
	}

	var msg Message
	if err := c.call(ctx, method, build, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

type inputMediaJSON struct {
	Type    string `json:"type"`
	Media   string `json:"media"`
	Caption string `json:"caption,omitempty"`
}

// SendMediaGroup uploads 2 to 10 files as one album.
func (c *Client) SendMediaGroup(ctx context.Context, chatID string, items []InputMedia, opts SendOptions) ([]Message, error) {
	if len(items) < 2 || len(items) > 10 {
		return nil, fmt.Errorf("telegram sendMediaGroup: group of %d items, want 2 to 10", len(items))
	}

	build := func() (io.Reader, string, error) {
		form := newForm()
		form.field("chat_id", chatID)
		if err := form.options(opts); err != nil {
			return nil, "", err
		}

		media := make([]inputMediaJSON, 0, len(items))
		for i, item := range items {
			name := "file" + strconv.Itoa(i)
			if err := form.file(name, item.Path); err != nil {
				return nil, "", err
			}
			media = append(media, inputMediaJSON{
				Type:    item.Type,
				Media:   "attach://" + name,
				Caption: item.Caption,
			})
		}
		if err := form.json("media", media); err != nil {
			return nil, "", err
		}
		return form.finish()
	}

	var msgs []Message
	if err := c.call(ctx, "sendMediaGroup", build, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// form accumulates a multipart body, remembering the first error.
type form struct {
	buf *bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	buf := &bytes.Buffer{}
	return &form{buf: buf, w: multipart.NewWriter(buf)}
}

func (f *form) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *form) json(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	f.field(name, string(data))
	return f.err
}

func (f *form) options(opts SendOptions) error {
	if opts.Silent {
		f.field("disable_notification", "true")
	}
	if opts.ReplyTo != nil {
		return f.json("reply_parameters", opts.ReplyTo)
	}
	return f.err
}

func (f *form) file(name, path string) error {
	if f.err != nil {
		return f.err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	mime, err := detectMIME(file, path)
	if err != nil {
		return err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, filepath.Base(path)))
	header.Set("Content-Type", mime)

	part, err := f.w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return nil
}

func (f *form) finish() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return f.buf, f.w.FormDataContentType(), nil
}

// detectMIME sniffs the file header, falling back to the extension and then
// to application/octet-stream. The file is left at offset zero.
func detectMIME(file *os.File, path string) (string, error) {
	head := make([]byte, 261)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", path, err)
	}

	if kind, err := filetype.Match(head[:n]); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if kind := filetype.GetType(ext); kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}
	return "application/octet-stream", nil
}
