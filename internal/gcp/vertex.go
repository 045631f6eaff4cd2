package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Summarizer Model Prompts ---
const SummarizerSystemPrompt = "You are an expert government budget analyst. Your task is to summarize official budget documents for the general public. Accuracy of figures, departments, and fiscal years is of utmost importance. Never invent numbers that are not in the source text."

// --- Translator Model Prompts ---
const TranslatorSystemPrompt = "You are a professional translator specializing in government and fiscal documents. You translate English budget summaries into Spanish for public consumption."
const TranslatorUserPromptTemplate = `Translate the following budget summary into Spanish.

Follow these instructions precisely:
1. Preserve all numbers, dates, and monetary amounts exactly as they appear in the source. Do not convert currencies or reformat figures.
2. Keep department names recognizable; translate them only where an established Spanish form exists.
3. Maintain a formal register appropriate for an official government publication.
4. Preserve the markdown structure (headings, lists) of the source.
5. Output ONLY the translation. Do not add commentary, preambles, or notes.

Summary to translate:

%s`

// VertexClient holds the pre-configured generative models for the pipeline.
type VertexClient struct {
	SummarizerModel *genai.GenerativeModel
	TranslatorModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	summarizerModel := baseClient.GenerativeModel(modelName)
	summarizerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SummarizerSystemPrompt)},
	}
	summarizerModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}

	translatorModel := baseClient.GenerativeModel(modelName)
	translatorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(TranslatorSystemPrompt)},
	}
	translatorModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.1),
	}
	translatorModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		SummarizerModel: summarizerModel,
		TranslatorModel: translatorModel,
		baseClient:      baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
