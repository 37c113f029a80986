/**
 * Extraction Pipeline Orchestrator
 *
 * Drives a job through the fixed stage sequence and owns the state
 * machine. Form schema jobs run:
 *
 *   Idle -> Normalizing -> Preprocessing -> Extracting -> PromptReady
 *        -> AwaitingRemoteCall -> Completed
 *
 * NoTextDetected is a terminal success state entered from Extracting when
 * zero tokens survive filtering; no prompt is built and no remote call is
 * made. Failed is reachable from every non-terminal state.
 */

package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"log"
	"strings"
	"time"

	"github.com/formlens/schema-worker/internal/config"
	"github.com/formlens/schema-worker/internal/document"
	apperrors "github.com/formlens/schema-worker/internal/errors"
	"github.com/formlens/schema-worker/internal/graph"
	"github.com/formlens/schema-worker/internal/imaging"
	"github.com/formlens/schema-worker/internal/ocr"
	"github.com/formlens/schema-worker/internal/prompt"
	"github.com/formlens/schema-worker/internal/storage"
)

// State is a pipeline stage
type State string

const (
	StateIdle               State = "idle"
	StateNormalizing        State = "normalizing"
	StatePreprocessing      State = "preprocessing"
	StateExtracting         State = "extracting"
	StatePromptReady        State = "prompt_ready"
	StateAwaitingRemoteCall State = "awaiting_remote_call"
	StateCompleted          State = "completed"
	StateNoTextDetected     State = "no_text_detected"
	StateFailed             State = "failed"
)

// SchemaExtractor abstracts the remote vision endpoint for testing
type SchemaExtractor interface {
	ExtractSchema(ctx context.Context, jobID string, imageData []byte, promptText string) (map[string]interface{}, error)
}

// Embedder abstracts the embedding endpoint used for similar-form lookup
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Request carries one job's input through the pipeline
type Request struct {
	JobID               string
	Filename            string
	MimeType            string
	Data                []byte
	ConfidenceThreshold int   // 0 means use the configured default
	EnhancedPreprocess  *bool // nil means use the configured default
}

// Result is the terminal outcome of a pipeline run
type Result struct {
	State        State
	FormID       string
	TokenCount   int
	Prompt       string
	Payload      map[string]interface{}
	Warnings     []string
	FromCache    bool
	SimilarForms []storage.SimilarForm
}

// Orchestrator wires the pipeline stages together
type Orchestrator struct {
	cfg       *config.Config
	extractor *ocr.Extractor
	converter *document.Converter
	vision    SchemaExtractor
	embedder  Embedder
	store     *storage.Manager
}

// NewOrchestrator creates a pipeline orchestrator. embedder and store may
// be nil; the corresponding features are skipped.
func NewOrchestrator(cfg *config.Config, extractor *ocr.Extractor, converter *document.Converter, vision SchemaExtractor, embedder Embedder, store *storage.Manager) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		extractor: extractor,
		converter: converter,
		vision:    vision,
		embedder:  embedder,
		store:     store,
	}
}

func transition(jobID string, from, to State) State {
	log.Printf("[Job %s] State: %s -> %s", jobID, from, to)
	return to
}

// ProcessFormSchema runs a document through the full form schema pipeline
func (o *Orchestrator) ProcessFormSchema(ctx context.Context, req *Request) (*Result, error) {
	state := StateIdle
	result := &Result{State: state}

	threshold, enhanced := o.resolveSettings(req)

	imageData, directTokens, warnings, err := o.resolveInput(ctx, req)
	if err != nil {
		result.State = transition(req.JobID, state, StateFailed)
		return result, err
	}
	result.Warnings = warnings

	// Normalize. Direct-text documents have no raster image; the form id
	// falls back to a hash of the document bytes and the geometry to the
	// synthetic token extent.
	state = transition(req.JobID, state, StateNormalizing)
	var (
		formID        string
		width, height int
		visionImage   []byte
		normalizedSrc image.Image
	)
	if directTokens != nil {
		formID = contentID(req.Data)
		width, height = tokenExtent(directTokens)
		log.Printf("[Job %s] Direct-text document: %d tokens, form_id=%s", req.JobID, len(directTokens), formID)
	} else {
		normalized, err := imaging.Normalize(req.JobID, imageData, imaging.NormalizeOptions{
			MinDimension: o.cfg.MinImageDimension,
			MaxPixels:    o.cfg.MaxImagePixels,
			MaxDimension: o.cfg.MaxImageDimension,
		})
		if err != nil {
			result.State = transition(req.JobID, state, StateFailed)
			return result, err
		}
		formID = normalized.FormID
		width, height = normalized.Width, normalized.Height
		visionImage = normalized.JPEG
		normalizedSrc = normalized.Image
		result.Warnings = append(result.Warnings, normalized.Warnings...)
		log.Printf("[Job %s] Normalized image: %dx%d, form_id=%s", req.JobID, width, height, formID)
	}
	result.FormID = formID

	// Identical content with identical settings produces an identical
	// prompt, so a completed result can be replayed from cache.
	cacheKey := storage.CacheKey(formID, threshold, enhanced)
	if o.store != nil {
		if cached := o.store.CachedResult(ctx, cacheKey); cached != nil {
			log.Printf("[Job %s] Cache hit for form %s", req.JobID, formID)
			payload, tokenCount := decodeCacheEntry(cached)
			result.State = StateCompleted
			result.Payload = payload
			result.TokenCount = tokenCount
			result.FromCache = true
			return result, nil
		}
	}

	// Preprocess and extract
	var tokens []ocr.TextToken
	if directTokens != nil {
		// Text came straight from the document; no raster OCR needed.
		state = transition(req.JobID, state, StatePreprocessing)
		state = transition(req.JobID, state, StateExtracting)
		tokens = directTokens
	} else {
		state = transition(req.JobID, state, StatePreprocessing)
		binary := imaging.Preprocess(normalizedSrc, enhanced)

		state = transition(req.JobID, state, StateExtracting)
		tokens, err = o.extractor.Extract(ctx, binary, threshold)
		if err != nil {
			result.State = transition(req.JobID, state, StateFailed)
			return result, err
		}
	}
	result.TokenCount = len(tokens)
	log.Printf("[Job %s] Extracted %d text tokens (threshold=%d)", req.JobID, len(tokens), threshold)

	if len(tokens) == 0 {
		result.State = transition(req.JobID, state, StateNoTextDetected)
		result.Payload = map[string]interface{}{
			"form_id": formID,
			"status":  "no_text_detected",
		}
		return result, nil
	}

	// Build prompt
	meta := prompt.FormMetadata{
		FormID:               formID,
		ImageWidth:           width,
		ImageHeight:          height,
		NumOCREntries:        len(tokens),
		ConfidenceThreshold:  threshold,
		PreprocessingEnabled: enhanced,
	}
	promptText, err := prompt.BuildFormSchemaPrompt(meta, tokens)
	if err != nil {
		result.State = transition(req.JobID, state, StateFailed)
		return result, err
	}
	state = transition(req.JobID, state, StatePromptReady)
	result.Prompt = promptText

	// Remote schema extraction
	state = transition(req.JobID, state, StateAwaitingRemoteCall)
	payload, err := o.vision.ExtractSchema(ctx, req.JobID, visionImage, promptText)
	if err != nil {
		result.State = transition(req.JobID, state, StateFailed)
		return result, err
	}
	result.Payload = payload
	result.State = transition(req.JobID, state, StateCompleted)

	if o.store != nil {
		o.store.StoreResult(ctx, cacheKey, cacheEntry(payload, len(tokens)))
	}
	o.lookupSimilarForms(ctx, req.JobID, formID, tokens, result)

	return result, nil
}

// ProcessKnowledgeGraph runs OCR on the document and builds an entity and
// relationship graph from the recognized text
func (o *Orchestrator) ProcessKnowledgeGraph(ctx context.Context, req *Request, graphPipeline *graph.Pipeline) (*Result, error) {
	state := StateIdle
	result := &Result{State: state}

	imageData, directTokens, warnings, err := o.resolveInput(ctx, req)
	if err != nil {
		result.State = transition(req.JobID, state, StateFailed)
		return result, err
	}
	result.Warnings = warnings

	threshold, enhanced := o.resolveSettings(req)

	var tokens []ocr.TextToken
	if directTokens != nil {
		state = transition(req.JobID, state, StateExtracting)
		tokens = directTokens
	} else {
		state = transition(req.JobID, state, StateNormalizing)
		normalized, err := imaging.Normalize(req.JobID, imageData, imaging.NormalizeOptions{
			MinDimension: o.cfg.MinImageDimension,
			MaxPixels:    o.cfg.MaxImagePixels,
			MaxDimension: o.cfg.MaxImageDimension,
		})
		if err != nil {
			result.State = transition(req.JobID, state, StateFailed)
			return result, err
		}
		result.FormID = normalized.FormID

		state = transition(req.JobID, state, StatePreprocessing)
		binary := imaging.Preprocess(normalized.Image, enhanced)

		state = transition(req.JobID, state, StateExtracting)
		tokens, err = o.extractor.Extract(ctx, binary, threshold)
		if err != nil {
			result.State = transition(req.JobID, state, StateFailed)
			return result, err
		}
	}
	result.TokenCount = len(tokens)

	text := joinTokenText(tokens)
	if strings.TrimSpace(text) == "" {
		result.State = transition(req.JobID, state, StateNoTextDetected)
		result.Payload = map[string]interface{}{"status": "no_text_detected"}
		return result, nil
	}

	state = transition(req.JobID, state, StateAwaitingRemoteCall)
	g, err := graphPipeline.Extract(ctx, req.JobID, text)
	if err != nil {
		result.State = transition(req.JobID, state, StateFailed)
		return result, err
	}

	result.Payload = map[string]interface{}{
		"entities":       g.Entities,
		"relationships":  g.Relationships,
		"entity_count":   len(g.Entities),
		"relation_count": len(g.Relationships),
	}
	result.State = transition(req.JobID, state, StateCompleted)
	return result, nil
}

// resolveSettings applies per-job overrides on top of the configured
// defaults. A zero threshold means no override; non-zero overrides are
// clamped into the accepted band so a job payload cannot smuggle in a
// threshold the configuration layer would have rejected.
func (o *Orchestrator) resolveSettings(req *Request) (threshold int, enhanced bool) {
	threshold = o.cfg.ConfidenceThreshold
	if req.ConfidenceThreshold != 0 {
		threshold = req.ConfidenceThreshold
		switch {
		case threshold < config.MinConfidenceThreshold:
			log.Printf("[Job %s] Confidence threshold %d below minimum, clamped to %d",
				req.JobID, threshold, config.MinConfidenceThreshold)
			threshold = config.MinConfidenceThreshold
		case threshold > config.MaxConfidenceThreshold:
			log.Printf("[Job %s] Confidence threshold %d above maximum, clamped to %d",
				req.JobID, threshold, config.MaxConfidenceThreshold)
			threshold = config.MaxConfidenceThreshold
		}
	}

	enhanced = o.cfg.EnhancedPreprocessing
	if req.EnhancedPreprocess != nil {
		enhanced = *req.EnhancedPreprocess
	}
	return threshold, enhanced
}

// resolveInput normalizes the inbound document to image bytes. PDFs are
// rasterized; when rasterization is unavailable, direct text extraction
// yields synthetic tokens instead, signalled by a nil image with a
// non-nil token list.
func (o *Orchestrator) resolveInput(ctx context.Context, req *Request) ([]byte, []ocr.TextToken, []string, error) {
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = document.DetectMimeType(req.Data)
	}

	switch {
	case mimeType == "application/pdf":
		converted, err := o.converter.Convert(ctx, req.JobID, req.Data)
		if err != nil {
			return nil, nil, nil, err
		}
		if converted.DirectText {
			return nil, converted.Tokens, converted.Warnings, nil
		}
		return converted.ImageData, nil, converted.Warnings, nil
	case document.IsImageMime(mimeType):
		return req.Data, nil, nil, nil
	default:
		return nil, nil, nil, apperrors.NewUnsupportedDocumentFormatError(req.JobID, mimeType)
	}
}

// lookupSimilarForms embeds the recognized text and queries the form
// vector index. Failures degrade to an empty result.
func (o *Orchestrator) lookupSimilarForms(ctx context.Context, jobID, formID string, tokens []ocr.TextToken, result *Result) {
	if o.embedder == nil || o.store == nil || o.store.Qdrant == nil {
		return
	}

	text := joinTokenText(tokens)
	embedCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	vector, err := o.embedder.GenerateEmbedding(embedCtx, text)
	if err != nil {
		log.Printf("[Job %s] Similar-form embedding failed: %v", jobID, err)
		return
	}

	result.SimilarForms = o.store.FindSimilarForms(embedCtx, vector, 5)
	o.store.IndexFormVector(embedCtx, formID, vector, map[string]interface{}{
		"token_count": len(tokens),
		"indexed_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if len(result.SimilarForms) > 0 {
		log.Printf("[Job %s] Found %d similar forms (best score %.3f)", jobID, len(result.SimilarForms), result.SimilarForms[0].Score)
	}
}

// cacheEntry wraps the remote payload with the token count so a replayed
// job reports the same statistics as the original run.
func cacheEntry(payload map[string]interface{}, tokenCount int) map[string]interface{} {
	return map[string]interface{}{
		"result":          payload,
		"num_ocr_entries": tokenCount,
	}
}

// decodeCacheEntry unwraps a cached envelope. Entries written before the
// envelope existed are returned as the payload with a zero count.
func decodeCacheEntry(cached map[string]interface{}) (map[string]interface{}, int) {
	payload, ok := cached["result"].(map[string]interface{})
	if !ok {
		return cached, 0
	}

	count := 0
	switch v := cached["num_ocr_entries"].(type) {
	case float64: // numbers arrive as float64 after the redis JSON round trip
		count = int(v)
	case int:
		count = v
	}
	return payload, count
}

// contentID derives the form identifier for documents that never pass
// through the image normalizer.
func contentID(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// tokenExtent reports the bounding extent of a synthetic token stack.
func tokenExtent(tokens []ocr.TextToken) (int, int) {
	var w, h int
	for _, t := range tokens {
		if t.Bbox[2] > w {
			w = t.Bbox[2]
		}
		if t.Bbox[3] > h {
			h = t.Bbox[3]
		}
	}
	return w, h
}

func joinTokenText(tokens []ocr.TextToken) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

// StateOf maps a result to the persisted job status string
func StateOf(result *Result) string {
	switch result.State {
	case StateCompleted:
		return "completed"
	case StateNoTextDetected:
		return "no_text_detected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("interrupted_%s", result.State)
	}
}
