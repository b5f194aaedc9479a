package media

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tidwall/gjson"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// TranscriptFormat is the sniffed sub-format of a transcript document
type TranscriptFormat string

const (
	FormatJSON  TranscriptFormat = "json"
	FormatCSV   TranscriptFormat = "csv"
	FormatPlain TranscriptFormat = "plain"
)

// transcriptLine matches "[hh:mm:ss] Speaker: text" and "Speaker: text"
var transcriptLine = regexp.MustCompile(`^\s*(?:\[(\d{1,2}:\d{2}(?::\d{2})?(?:\.\d+)?)\]\s*)?([^:\[\]]{1,40}?)\s*:\s+(.*)$`)

// bracketOnly matches "[hh:mm:ss] text" without a speaker
var bracketOnly = regexp.MustCompile(`^\s*\[(\d{1,2}:\d{2}(?::\d{2})?(?:\.\d+)?)\]\s*(.*)$`)

// TranscriptProcessor parses text transcripts attached as documents
type TranscriptProcessor struct {
	logger *slog.Logger
}

// NewTranscriptProcessor creates a transcript processor.
func NewTranscriptProcessor(cfg Config) *TranscriptProcessor {
	cfg = cfg.withDefaults()
	return &TranscriptProcessor{logger: cfg.Logger.With("processor", "transcript")}
}

// transcriptTurn is a parsed line or record; start is -1 when unknown
type transcriptTurn struct {
	start   float64
	end     float64
	speaker string
	text    string
}

// Process sniffs the sub-format and parses timestamped turns.
func (p *TranscriptProcessor) Process(ctx context.Context, file domain.RawFile) *domain.ProcessedMedia {
	result := domain.NewProcessedMedia()

	if !isText(file.Data) {
		result.Fail("sniff", domain.KindMediaProcessing,
			fmt.Errorf("unsupported document format %s", mimetype.Detect(file.Data).String()))
		return result
	}

	format := SniffTranscript(file.Data)
	var (
		turns []transcriptTurn
		err   error
	)
	switch format {
	case FormatJSON:
		turns, err = parseJSONTranscript(file.Data)
	case FormatCSV:
		turns, err = parseCSVTranscript(file.Data)
	default:
		turns = parsePlainTranscript(string(file.Data))
	}
	if err != nil {
		result.Fail("parse_"+string(format), domain.KindMediaProcessing, err)
		return result
	}
	if len(turns) == 0 {
		result.Fail("parse_"+string(format), domain.KindMediaProcessing, errors.New("no transcript content"))
		return result
	}

	fillEnds(turns)
	for _, t := range turns {
		result.TranscriptSegments = append(result.TranscriptSegments, domain.TranscriptSegment{
			Start:   t.start,
			End:     t.end,
			Text:    t.text,
			Speaker: t.speaker,
		})
		if t.speaker == "" {
			continue
		}
		result.Messages = append(result.Messages, domain.CanonicalMessage{
			Role:    SpeakerRole(t.speaker),
			Content: t.text,
			SourceMetadata: map[string]any{
				"speaker_label": t.speaker,
				"offset":        t.start,
				"source":        "transcript_" + string(format),
			},
		})
	}
	domain.SortSegments(result.TranscriptSegments)

	p.logger.Debug("transcript parsed", "file", file.Name, "format", format, "turns", len(turns))
	result.Settle(1, 1)
	return result
}

// isText reports whether content sniffs as some kind of text.
func isText(data []byte) bool {
	if len(bytes.TrimSpace(data)) == 0 {
		return true
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// SniffTranscript picks the sub-format: JSON when the content is a valid
// JSON document, CSV when the header names speaker and text columns,
// plain text otherwise.
func SniffTranscript(data []byte) TranscriptFormat {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && gjson.ValidBytes(trimmed) {
		return FormatJSON
	}

	header, _, _ := bytes.Cut(trimmed, []byte("\n"))
	if bytes.Contains(header, []byte(",")) {
		cols := csvHeader(string(header))
		if _, ok := cols["speaker"]; ok {
			if _, ok := cols["text"]; ok {
				return FormatCSV
			}
		}
	}
	return FormatPlain
}

func csvHeader(line string) map[string]int {
	cols := make(map[string]int)
	for i, c := range strings.Split(line, ",") {
		cols[strings.ToLower(strings.Trim(strings.TrimSpace(c), `"`))] = i
	}
	return cols
}

func parseJSONTranscript(data []byte) ([]transcriptTurn, error) {
	doc := gjson.ParseBytes(bytes.TrimSpace(data))
	list := doc
	if doc.IsObject() {
		for _, key := range []string{"segments", "messages", "turns", "transcript"} {
			if v := doc.Get(key); v.IsArray() {
				list = v
				break
			}
		}
	}
	if !list.IsArray() {
		return nil, errors.New("json transcript has no segment array")
	}

	var turns []transcriptTurn
	for i, item := range list.Array() {
		text := strings.TrimSpace(firstString(item, "text", "content", "message"))
		if text == "" {
			continue
		}
		start, err := offsetValue(firstResult(item, "start", "timestamp", "time", "offset"))
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		end := -1.0
		if e := item.Get("end"); e.Exists() {
			if end, err = offsetValue(e); err != nil {
				return nil, fmt.Errorf("segment %d: %w", i, err)
			}
		}
		turns = append(turns, transcriptTurn{
			start:   start,
			end:     end,
			speaker: strings.TrimSpace(firstString(item, "speaker", "role", "sender", "name")),
			text:    text,
		})
	}
	return turns, nil
}

func parseCSVTranscript(data []byte) ([]transcriptTurn, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := csvHeader(strings.Join(header, ","))
	speakerCol, textCol := cols["speaker"], cols["text"]
	tsCol, hasTS := cols["timestamp"]
	if !hasTS {
		tsCol, hasTS = cols["start"]
	}

	var turns []transcriptTurn
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		text := strings.TrimSpace(field(rec, textCol))
		if text == "" {
			continue
		}
		start := -1.0
		if hasTS {
			if raw := strings.TrimSpace(field(rec, tsCol)); raw != "" {
				if start, err = ParseOffset(raw); err != nil {
					return nil, fmt.Errorf("csv line %d: %w", line, err)
				}
			}
		}
		turns = append(turns, transcriptTurn{
			start:   start,
			end:     -1,
			speaker: strings.TrimSpace(field(rec, speakerCol)),
			text:    text,
		})
	}
	return turns, nil
}

func parsePlainTranscript(text string) []transcriptTurn {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var turns []transcriptTurn
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if m := transcriptLine.FindStringSubmatch(line); m != nil && !strings.Contains(m[2], "://") {
			start := -1.0
			if m[1] != "" {
				start, _ = ParseOffset(m[1])
			}
			turns = append(turns, transcriptTurn{start: start, end: -1, speaker: strings.TrimSpace(m[2]), text: strings.TrimSpace(m[3])})
			continue
		}
		if m := bracketOnly.FindStringSubmatch(line); m != nil {
			start, _ := ParseOffset(m[1])
			turns = append(turns, transcriptTurn{start: start, end: -1, text: strings.TrimSpace(m[2])})
			continue
		}

		// Continuation of the previous turn
		if len(turns) > 0 {
			last := &turns[len(turns)-1]
			last.text = strings.TrimSpace(last.text + "\n" + strings.TrimSpace(line))
		} else {
			turns = append(turns, transcriptTurn{start: -1, end: -1, text: strings.TrimSpace(line)})
		}
	}
	return turns
}

// fillEnds sets unknown starts to zero and unknown ends to the next start.
func fillEnds(turns []transcriptTurn) {
	for i := range turns {
		if turns[i].start < 0 {
			turns[i].start = 0
		}
	}
	for i := range turns {
		if turns[i].end >= turns[i].start {
			continue
		}
		turns[i].end = turns[i].start
		if i+1 < len(turns) && turns[i+1].start > turns[i].start {
			turns[i].end = turns[i+1].start
		}
	}
}

// ParseOffset reads "hh:mm:ss", "mm:ss" (optionally with fractional seconds)
// or plain seconds.
func ParseOffset(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 {
			return 0, fmt.Errorf("negative offset %q", s)
		}
		return f, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	total := 0.0
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}

func offsetValue(r gjson.Result) (float64, error) {
	switch r.Type {
	case gjson.Null:
		return -1, nil
	case gjson.Number:
		return r.Float(), nil
	case gjson.String:
		if strings.TrimSpace(r.String()) == "" {
			return -1, nil
		}
		return ParseOffset(r.String())
	}
	return 0, fmt.Errorf("invalid offset %s", r.Raw)
}

func firstResult(item gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func firstString(item gjson.Result, keys ...string) string {
	return firstResult(item, keys...).String()
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
