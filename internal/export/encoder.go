package export

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ecodeclub/ekit/slice"
	"github.com/pribylovaa/comment-tree/internal/models"
)

// ErrNotImplemented — кодировка не поддерживается.
var ErrNotImplemented = errors.New("not implemented")

// Поддерживаемые кодировки.
const (
	EncodingXML  = "xml"
	EncodingJSON = "json"
)

// createdLayout — ISO 8601 в UTC с микросекундами и суффиксом Z.
const createdLayout = "2006-01-02T15:04:05.999999Z07:00"

// Encoder сериализует выборку комментариев в артефакт.
type Encoder interface {
	Name() string
	MediaType() string
	Encode(w io.Writer, items []models.Comment) error
}

// EncoderFor возвращает кодировщик по имени (регистр не важен).
// Неизвестное имя — ErrNotImplemented.
func EncoderFor(name string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case EncodingXML:
		return xmlEncoder{}, nil
	case EncodingJSON:
		return jsonEncoder{}, nil
	default:
		return nil, fmt.Errorf("encoding %q: %w", name, ErrNotImplemented)
	}
}

// record — внешнее представление комментария.
// Порядок полей фиксирован и совпадает в JSON и XML.
type record struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Ancestors   []int64         `json:"ancestors"`
	Created     string          `json:"created"`
	ObjectID    int64           `json:"object_id"`
	Level       int             `json:"level"`
	Text        string          `json:"text"`
	User        int64           `json:"user"`
	ContentType models.RootKind `json:"content_type"`
	Parent      *int64          `json:"parent"`
}

func toRecord(_ int, c models.Comment) record {
	anc := c.Ancestors
	if anc == nil {
		anc = []int64{}
	}

	return record{
		ID:          c.ID,
		UserID:      c.OwnerID,
		Ancestors:   anc,
		Created:     c.CreatedAt.UTC().Format(createdLayout),
		ObjectID:    c.Root.ID,
		Level:       c.Level,
		Text:        c.Text,
		User:        c.OwnerID,
		ContentType: c.Root.Kind,
		Parent:      c.ParentID,
	}
}

func fromRecord(_ int, r record) (models.Comment, error) {
	created, err := time.Parse(time.RFC3339Nano, r.Created)
	if err != nil {
		return models.Comment{}, fmt.Errorf("comment %d: created: %w", r.ID, err)
	}

	return models.Comment{
		ID:        r.ID,
		OwnerID:   r.UserID,
		CreatedAt: created,
		Root:      models.RootRef{Kind: r.ContentType, ID: r.ObjectID},
		ParentID:  r.Parent,
		Level:     r.Level,
		Ancestors: r.Ancestors,
		Text:      r.Text,
	}, nil
}

// DecodeJSON читает артефакт JSON-кодировщика обратно в комментарии.
func DecodeJSON(r io.Reader) ([]models.Comment, error) {
	var recs []record
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([]models.Comment, 0, len(recs))
	for i, rec := range recs {
		c, err := fromRecord(i, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, nil
}

type jsonEncoder struct{}

func (jsonEncoder) Name() string      { return EncodingJSON }
func (jsonEncoder) MediaType() string { return "application/json" }

func (jsonEncoder) Encode(w io.Writer, items []models.Comment) error {
	return json.NewEncoder(w).Encode(slice.Map(items, toRecord))
}

type xmlEncoder struct{}

func (xmlEncoder) Name() string      { return EncodingXML }
func (xmlEncoder) MediaType() string { return "application/xml" }

// Encode пишет документ вида
//
//	<?xml version="1.0" encoding="utf-8"?>
//	<root><list-item><id>1</id>...<ancestors><list-item>3</list-item></ancestors>...</list-item></root>
//
// Пустые значения (parent у корневых, пустой ancestors) — пустые элементы.
func (xmlEncoder) Encode(w io.Writer, items []models.Comment) error {
	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>`+"\n"); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	x := &xmlWriter{enc: enc}

	x.open("root")
	for _, r := range slice.Map(items, toRecord) {
		x.open("list-item")
		x.leaf("id", strconv.FormatInt(r.ID, 10))
		x.leaf("user_id", strconv.FormatInt(r.UserID, 10))
		x.open("ancestors")
		for _, a := range r.Ancestors {
			x.leaf("list-item", strconv.FormatInt(a, 10))
		}
		x.close("ancestors")
		x.leaf("created", r.Created)
		x.leaf("object_id", strconv.FormatInt(r.ObjectID, 10))
		x.leaf("level", strconv.Itoa(r.Level))
		x.leaf("text", r.Text)
		x.leaf("user", strconv.FormatInt(r.User, 10))
		x.leaf("content_type", string(r.ContentType))
		parent := ""
		if r.Parent != nil {
			parent = strconv.FormatInt(*r.Parent, 10)
		}
		x.leaf("parent", parent)
		x.close("list-item")
	}
	x.close("root")

	if x.err != nil {
		return x.err
	}

	return enc.Flush()
}

// xmlWriter запоминает первую ошибку энкодера.
type xmlWriter struct {
	enc *xml.Encoder
	err error
}

func (x *xmlWriter) token(t xml.Token) {
	if x.err == nil {
		x.err = x.enc.EncodeToken(t)
	}
}

func (x *xmlWriter) open(name string)  { x.token(xml.StartElement{Name: xml.Name{Local: name}}) }
func (x *xmlWriter) close(name string) { x.token(xml.EndElement{Name: xml.Name{Local: name}}) }

func (x *xmlWriter) leaf(name, value string) {
	x.open(name)
	if value != "" {
		x.token(xml.CharData(value))
	}
	x.close(name)
}
