package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/ocrnlp/internal/extract"
	"github.com/MeKo-Tech/ocrnlp/internal/testutil"
	"github.com/MeKo-Tech/ocrnlp/internal/testutil/fake"
	"github.com/MeKo-Tech/ocrnlp/internal/workers"
)

// RegisterSteps binds every step of the API suite.
func (testCtx *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	// Setup
	sc.Step(`^the recognition engine reads "([^"]*)" with confidence ([0-9.]+)$`, testCtx.engineReadsWithConfidence)
	sc.Step(`^the recognition engine reads "([^"]*)" without confidence$`, testCtx.engineReadsWithoutConfidence)
	sc.Step(`^the recognition engine finds nothing$`, testCtx.engineFindsNothing)
	sc.Step(`^the recognition engine fails with "([^"]*)"$`, testCtx.engineFails)
	sc.Step(`^the recognition engine is saturated$`, testCtx.engineSaturated)
	sc.Step(`^PDFs render (\d+) pages?$`, testCtx.pdfsRender)
	sc.Step(`^PDFs cannot be rendered$`, testCtx.pdfsFail)
	sc.Step(`^the page budget is (\d+)$`, testCtx.pageBudget)
	sc.Step(`^the service is running$`, testCtx.start)

	// HTTP
	sc.Step(`^I GET "([^"]*)"$`, testCtx.get)
	sc.Step(`^I upload an image named "([^"]*)"$`, testCtx.uploadImage)
	sc.Step(`^I upload a PDF named "([^"]*)"$`, testCtx.uploadPDF)
	sc.Step(`^I upload "([^"]*)" as "([^"]*)" containing "([^"]*)"$`, testCtx.uploadRaw)
	sc.Step(`^I upload an empty file named "([^"]*)"$`, testCtx.uploadEmpty)
	sc.Step(`^the response status should be (\d+)$`, testCtx.statusShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.headerShouldBe)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.fieldShouldBe)
	sc.Step(`^the error kind should be "([^"]*)"$`, testCtx.errorKindShouldBe)
	sc.Step(`^the result should contain (\d+) blocks?$`, testCtx.resultBlockCount)
	sc.Step(`^the blocks should be on pages "([^"]*)"$`, testCtx.blocksOnPages)
	sc.Step(`^block (\d+) should read "([^"]*)"$`, testCtx.blockShouldRead)
	sc.Step(`^block (\d+) should have confidence ([0-9.]+)$`, testCtx.blockConfidence)
	sc.Step(`^block (\d+) should have no confidence$`, testCtx.blockNoConfidence)

	// WebSocket
	sc.Step(`^I stream a PDF named "([^"]*)" over the WebSocket$`, testCtx.streamPDF)
	sc.Step(`^I stream an empty document over the WebSocket$`, testCtx.streamEmpty)
	sc.Step(`^I should receive (\d+) page messages? then a result with count (\d+)$`, testCtx.pageMessagesThenResult)
	sc.Step(`^I should receive an error message of kind "([^"]*)"$`, testCtx.errorMessageOfKind)
}

func (testCtx *TestContext) engineReadsWithConfidence(text string, conf float64) error {
	testCtx.engine = scriptedEngine(text, &conf)
	return nil
}

func (testCtx *TestContext) engineReadsWithoutConfidence(text string) error {
	testCtx.engine = scriptedEngine(text, nil)
	return nil
}

func (testCtx *TestContext) engineFindsNothing() error {
	testCtx.engine = fake.Engine()
	return nil
}

func (testCtx *TestContext) engineFails(msg string) error {
	testCtx.engine = fake.FailingEngine(errors.New(msg))
	return nil
}

// engineSaturated holds the single recognition slot and fills the one
// place in the wait queue, so the next request is turned away.
func (testCtx *TestContext) engineSaturated() error {
	limiter := workers.NewLimiter(workers.Config{Name: "saturated", MaxWorkers: 1, MaxQueue: 1})
	if err := limiter.Acquire(context.Background()); err != nil {
		return err
	}
	waiter := make(chan struct{})
	go func() {
		defer close(waiter)
		if limiter.Acquire(context.Background()) == nil {
			limiter.Release()
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for limiter.Stats().Waiting < 1 {
		if time.Now().After(deadline) {
			return errors.New("queue did not fill")
		}
		time.Sleep(time.Millisecond)
	}

	testCtx.limiter = limiter
	testCtx.cleanups = append(testCtx.cleanups, func() {
		limiter.Release()
		<-waiter
	})
	return nil
}

func (testCtx *TestContext) pdfsRender(pages int) error {
	testCtx.backend = fake.PDF(pages)
	return nil
}

func (testCtx *TestContext) pdfsFail() error {
	testCtx.backend = fake.FailingPDF(errors.New("not a pdf"))
	return nil
}

func (testCtx *TestContext) pageBudget(n int) error {
	testCtx.maxPages = n
	return nil
}

func (testCtx *TestContext) url(path string) (string, error) {
	if testCtx.HTTPServer == nil {
		return "", errors.New("service is not running")
	}
	return testCtx.HTTPServer.URL + path, nil
}

func (testCtx *TestContext) record(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastStatusCode = resp.StatusCode
	testCtx.LastHeaders = resp.Header
	testCtx.LastBody = body
	return nil
}

func (testCtx *TestContext) get(path string) error {
	u, err := testCtx.url(path)
	if err != nil {
		return err
	}
	resp, err := http.Get(u) //nolint:noctx // test client
	if err != nil {
		return err
	}
	return testCtx.record(resp)
}

func (testCtx *TestContext) upload(filename, contentType string, data []byte) error {
	u, err := testCtx.url("/ocr/extract")
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	resp, err := http.Post(u, mw.FormDataContentType(), &body) //nolint:noctx // test client
	if err != nil {
		return err
	}
	return testCtx.record(resp)
}

func pngBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, testutil.TextImage("hello"), imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pdfBytes only needs to be classified as a PDF; the fake backend renders
// pages without parsing it.
func pdfBytes() []byte {
	return []byte("%PDF-1.4\n%%EOF\n")
}

func (testCtx *TestContext) uploadImage(filename string) error {
	data, err := pngBytes()
	if err != nil {
		return err
	}
	return testCtx.upload(filename, "image/png", data)
}

func (testCtx *TestContext) uploadPDF(filename string) error {
	return testCtx.upload(filename, "application/pdf", pdfBytes())
}

func (testCtx *TestContext) uploadRaw(filename, contentType, content string) error {
	return testCtx.upload(filename, contentType, []byte(content))
}

func (testCtx *TestContext) uploadEmpty(filename string) error {
	return testCtx.upload(filename, "", nil)
}

func (testCtx *TestContext) statusShouldBe(code int) error {
	if testCtx.LastStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, testCtx.LastStatusCode, testCtx.LastBody)
	}
	return nil
}

func (testCtx *TestContext) headerShouldBe(name, want string) error {
	if got := testCtx.LastHeaders.Get(name); got != want {
		return fmt.Errorf("expected header %s %q, got %q", name, want, got)
	}
	return nil
}

func (testCtx *TestContext) fieldShouldBe(field, want string) error {
	var body map[string]any
	if err := json.Unmarshal(testCtx.LastBody, &body); err != nil {
		return fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return fmt.Errorf("response has no field %q: %s", field, testCtx.LastBody)
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s %q, got %q", field, want, got)
	}
	return nil
}

func (testCtx *TestContext) errorKindShouldBe(kind string) error {
	return testCtx.fieldShouldBe("kind", kind)
}

func (testCtx *TestContext) result() (*extract.Result, error) {
	var res extract.Result
	if err := json.Unmarshal(testCtx.LastBody, &res); err != nil {
		return nil, fmt.Errorf("response is not a result: %w", err)
	}
	if res.Count != len(res.Blocks) {
		return nil, fmt.Errorf("count %d does not match %d blocks", res.Count, len(res.Blocks))
	}
	return &res, nil
}

func (testCtx *TestContext) resultBlockCount(n int) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if res.Count != n {
		return fmt.Errorf("expected %d blocks, got %d", n, res.Count)
	}
	return nil
}

func (testCtx *TestContext) blocksOnPages(want string) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	got := make([]string, len(res.Blocks))
	for i, b := range res.Blocks {
		got[i] = strconv.Itoa(b.Page)
	}
	if strings.Join(got, ",") != want {
		return fmt.Errorf("expected pages %s, got %s", want, strings.Join(got, ","))
	}
	return nil
}

func (testCtx *TestContext) block(n int) (*extract.Block, error) {
	res, err := testCtx.result()
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(res.Blocks) {
		return nil, fmt.Errorf("no block %d in %d blocks", n, len(res.Blocks))
	}
	return &res.Blocks[n-1], nil
}

func (testCtx *TestContext) blockShouldRead(n int, text string) error {
	b, err := testCtx.block(n)
	if err != nil {
		return err
	}
	if b.Text != text {
		return fmt.Errorf("expected block %d to read %q, got %q", n, text, b.Text)
	}
	return nil
}

func (testCtx *TestContext) blockConfidence(n int, want float64) error {
	b, err := testCtx.block(n)
	if err != nil {
		return err
	}
	if b.Confidence == nil {
		return fmt.Errorf("block %d has no confidence", n)
	}
	if *b.Confidence != want {
		return fmt.Errorf("expected block %d confidence %v, got %v", n, want, *b.Confidence)
	}
	return nil
}

func (testCtx *TestContext) blockNoConfidence(n int) error {
	b, err := testCtx.block(n)
	if err != nil {
		return err
	}
	if b.Confidence != nil {
		return fmt.Errorf("expected block %d without confidence, got %v", n, *b.Confidence)
	}
	return nil
}

func (testCtx *TestContext) stream(req map[string]any) error {
	u, err := testCtx.url("/ws/extract")
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(u, "http"), nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(req); err != nil {
		return err
	}

	testCtx.WSMessages = nil
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read websocket message: %w", err)
		}
		testCtx.WSMessages = append(testCtx.WSMessages, msg)
		if msg["type"] != "page" {
			return nil
		}
	}
}

func (testCtx *TestContext) streamPDF(filename string) error {
	return testCtx.stream(map[string]any{
		"filename":     filename,
		"content_type": "application/pdf",
		"data":         pdfBytes(),
	})
}

func (testCtx *TestContext) streamEmpty() error {
	return testCtx.stream(map[string]any{"filename": "empty.png", "data": []byte{}})
}

func (testCtx *TestContext) pageMessagesThenResult(pages, count int) error {
	msgs := testCtx.WSMessages
	if len(msgs) != pages+1 {
		return fmt.Errorf("expected %d messages, got %d: %v", pages+1, len(msgs), msgs)
	}
	for i, msg := range msgs[:pages] {
		if msg["type"] != "page" {
			return fmt.Errorf("message %d: expected a page message, got %v", i+1, msg)
		}
		if page := msg["page"]; page != float64(i+1) {
			return fmt.Errorf("message %d: expected page %d, got %v", i+1, i+1, page)
		}
	}
	last := msgs[pages]
	if last["type"] != "result" || last["count"] != float64(count) {
		return fmt.Errorf("expected a result with count %d, got %v", count, last)
	}
	return nil
}

func (testCtx *TestContext) errorMessageOfKind(kind string) error {
	if len(testCtx.WSMessages) == 0 {
		return errors.New("no websocket messages received")
	}
	last := testCtx.WSMessages[len(testCtx.WSMessages)-1]
	if last["type"] != "error" || last["kind"] != kind {
		return fmt.Errorf("expected an error of kind %s, got %v", kind, last)
	}
	return nil
}
