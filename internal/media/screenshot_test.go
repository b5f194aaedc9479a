package media

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven/mocks"
)

const layoutJSON = "Here you go:\n```json\n" + `{"messages":[
	{"sender":"ChatGPT","role":"assistant","text":"Sure, here is the plan.","timestamp":""},
	{"sender":"You","role":"","text":"Can you plan my week?","timestamp":"2024-02-01T09:00:00Z"}
]}` + "\n```"

func TestParseBubbles(t *testing.T) {
	bubbles, err := ParseBubbles(layoutJSON)
	require.NoError(t, err)
	require.Len(t, bubbles, 2)
	assert.Equal(t, "ChatGPT", bubbles[0].Sender)
	assert.Equal(t, "Can you plan my week?", bubbles[1].Text)

	bubbles, err = ParseBubbles(`[{"sender":"me","text":"hi"},{"sender":"bot","text":""}]`)
	require.NoError(t, err)
	assert.Len(t, bubbles, 1)

	_, err = ParseBubbles("I could not read this image")
	assert.Error(t, err)

	_, err = ParseBubbles(`{"messages":[]}`)
	assert.Error(t, err)
}

func TestOrderByOCR(t *testing.T) {
	bubbles := []Bubble{
		{Text: "second line"},
		{Text: "not in ocr"},
		{Text: "First   LINE"},
	}
	OrderByOCR(bubbles, "first line\nsecond line\n")

	assert.Equal(t, "First   LINE", bubbles[0].Text)
	assert.Equal(t, "not in ocr", bubbles[1].Text, "unfound bubble keeps its slot")
	assert.Equal(t, "second line", bubbles[2].Text)
}

func TestScreenshot_Complete(t *testing.T) {
	ocr := &mocks.MockOCRService{Text: "You\nCan you plan my week?\nChatGPT\nSure, here is the plan."}
	vision := &mocks.MockVisionService{Description: layoutJSON}

	res := NewScreenshotProcessor(ocr, vision, DefaultConfig()).Process(context.Background(), domain.RawFile{Name: "s.png"})

	assert.Equal(t, domain.MediaStatusComplete, res.Status)
	require.NotNil(t, res.OCRText)
	require.Len(t, res.Messages, 2)

	// OCR order wins over layout order
	assert.Equal(t, domain.RoleUser, res.Messages[0].Role)
	assert.Equal(t, "Can you plan my week?", res.Messages[0].Content)
	require.NotNil(t, res.Messages[0].Timestamp)
	assert.Equal(t, domain.RoleAssistant, res.Messages[1].Role)
	assert.Equal(t, "ChatGPT", res.Messages[1].SourceMetadata["sender"])
}

func TestScreenshot_LayoutFailsFallsBackToOCRBlock(t *testing.T) {
	ocr := &mocks.MockOCRService{Text: "  some chat text  "}
	vision := &mocks.MockVisionService{Err: errors.New("model overloaded")}

	res := NewScreenshotProcessor(ocr, vision, DefaultConfig()).Process(context.Background(), domain.RawFile{Name: "s.png"})

	assert.Equal(t, domain.MediaStatusPartial, res.Status)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "some chat text", res.Messages[0].Content)
	assert.Equal(t, "ocr_block", res.Messages[0].SourceMetadata["source"])
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "layout", res.Errors[0].Stage)
}

func TestScreenshot_OCRFailsKeepsLayoutOrder(t *testing.T) {
	ocr := &mocks.MockOCRService{Err: errors.New("ocr down")}
	vision := &mocks.MockVisionService{Description: layoutJSON}

	res := NewScreenshotProcessor(ocr, vision, DefaultConfig()).Process(context.Background(), domain.RawFile{Name: "s.png"})

	assert.Equal(t, domain.MediaStatusPartial, res.Status)
	assert.Nil(t, res.OCRText)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Sure, here is the plan.", res.Messages[0].Content)
}

func TestScreenshot_AllFail(t *testing.T) {
	res := NewScreenshotProcessor(nil, nil, DefaultConfig()).Process(context.Background(), domain.RawFile{Name: "s.png"})
	assert.Equal(t, domain.MediaStatusFailed, res.Status)
	assert.Len(t, res.Errors, 2)
	assert.Empty(t, res.Messages)
}
