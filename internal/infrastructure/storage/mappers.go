package storage

import (
	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/infrastructure/storage/models"
)

func imageParamsToJSONB(p domain.ImageParams) models.JSONBMap {
	return models.JSONBMap{
		"imagesPerGeneration": p.ImagesPerGeneration,
		"aspectRatio":         p.AspectRatio,
		"quality":             p.Quality,
		"plateauWindowSize":   p.PlateauWindowSize,
		"plateauThreshold":    p.PlateauThreshold,
	}
}

func imageParamsFromJSONB(m models.JSONBMap) domain.ImageParams {
	return domain.ImageParams{
		ImagesPerGeneration: m.GetInt("imagesPerGeneration"),
		AspectRatio:         m.GetString("aspectRatio"),
		Quality:             m.GetString("quality"),
		PlateauWindowSize:   m.GetInt("plateauWindowSize"),
		PlateauThreshold:    m.GetFloat("plateauThreshold"),
	}
}

func costsToJSONB(c domain.CostAccumulator) models.JSONBMap {
	return models.JSONBMap{
		"llmTokens":          c.LLMTokens,
		"imageGenerations":   c.ImageGenerations,
		"embeddingTokens":    c.EmbeddingTokens,
		"totalEstimatedCost": c.TotalEstimatedCost,
	}
}

func costsFromJSONB(m models.JSONBMap) domain.CostAccumulator {
	return domain.CostAccumulator{
		LLMTokens:          int64(m.GetInt("llmTokens")),
		ImageGenerations:   int64(m.GetInt("imageGenerations")),
		EmbeddingTokens:    int64(m.GetInt("embeddingTokens")),
		TotalEstimatedCost: m.GetFloat("totalEstimatedCost"),
	}
}

func requestToStorage(r *domain.GenerationRequest) *models.GenerationRequestModel {
	return &models.GenerationRequestModel{
		ID:                 r.ID,
		OrganizationID:     r.OrganizationID,
		CreatedByUserID:    r.CreatedByUserID,
		Brief:              r.Brief,
		InitialPrompt:      r.InitialPrompt,
		ReferenceImageURLs: models.StringArray(r.ReferenceImageURLs),
		NegativePrompts:    r.NegativePrompts,
		JudgeAgentIDs:      models.StringArray(r.JudgeAgentIDs),
		Image:              imageParamsToJSONB(r.Image),
		Threshold:          r.Threshold,
		MaxIterations:      r.MaxIterations,
		GenerationMode:     string(r.GenerationMode),
		Status:             string(r.Status),
		CompletionReason:   string(r.CompletionReason),
		CurrentIteration:   r.CurrentIteration,
		Costs:              costsToJSONB(r.Costs),
		FinalImageID:       r.FinalImageID,
		ErrorMessage:       r.ErrorMessage,
		CreatedAt:          r.CreatedAt,
		CompletedAt:        r.CompletedAt,
		DeletedAt:          r.DeletedAt,
	}
}

func requestFromStorage(m *models.GenerationRequestModel) *domain.GenerationRequest {
	return &domain.GenerationRequest{
		ID:                 m.ID,
		OrganizationID:     m.OrganizationID,
		CreatedByUserID:    m.CreatedByUserID,
		Brief:              m.Brief,
		InitialPrompt:      m.InitialPrompt,
		ReferenceImageURLs: []string(m.ReferenceImageURLs),
		NegativePrompts:    m.NegativePrompts,
		JudgeAgentIDs:      []string(m.JudgeAgentIDs),
		Image:              imageParamsFromJSONB(m.Image),
		Threshold:          m.Threshold,
		MaxIterations:      m.MaxIterations,
		GenerationMode:     domain.GenerationMode(m.GenerationMode),
		Status:             domain.RequestStatus(m.Status),
		CompletionReason:   domain.CompletionReason(m.CompletionReason),
		CurrentIteration:   m.CurrentIteration,
		Costs:              costsFromJSONB(m.Costs),
		FinalImageID:       m.FinalImageID,
		ErrorMessage:       m.ErrorMessage,
		CreatedAt:          m.CreatedAt,
		CompletedAt:        m.CompletedAt,
		DeletedAt:          m.DeletedAt,
	}
}

func evaluationToJSONB(e domain.EvaluationRecord) map[string]interface{} {
	out := map[string]interface{}{
		"agentId":      e.AgentID,
		"agentName":    e.AgentName,
		"imageId":      e.ImageID,
		"overallScore": e.OverallScore,
		"weight":       e.Weight,
		"feedback":     e.Feedback,
	}
	if e.CategoryScores != nil {
		out["categoryScores"] = e.CategoryScores
	}
	if e.TopIssue != nil {
		out["topIssue"] = map[string]interface{}{
			"problem":  e.TopIssue.Problem,
			"severity": string(e.TopIssue.Severity),
			"fix":      e.TopIssue.Fix,
		}
	}
	if e.WhatWorked != nil {
		out["whatWorked"] = e.WhatWorked
	}
	if e.Checklist != nil {
		checklist := make(map[string]interface{}, len(e.Checklist))
		for k, v := range e.Checklist {
			checklist[k] = map[string]interface{}{"passed": v.Passed, "note": v.Note}
		}
		out["checklist"] = checklist
	}
	if e.PromptInstructions != nil {
		out["promptInstructions"] = e.PromptInstructions
	}
	return out
}

func evaluationFromJSONB(raw interface{}) domain.EvaluationRecord {
	m, _ := raw.(map[string]interface{})
	record := domain.EvaluationRecord{
		AgentID:      stringVal(m, "agentId"),
		AgentName:    stringVal(m, "agentName"),
		ImageID:      stringVal(m, "imageId"),
		OverallScore: floatVal(m, "overallScore"),
		Weight:       floatVal(m, "weight"),
		Feedback:     stringVal(m, "feedback"),
	}
	if cs, ok := m["categoryScores"].(map[string]interface{}); ok {
		record.CategoryScores = make(map[string]float64, len(cs))
		for k, v := range cs {
			if f, ok := v.(float64); ok {
				record.CategoryScores[k] = f
			}
		}
	}
	if ti, ok := m["topIssue"].(map[string]interface{}); ok {
		record.TopIssue = &domain.TopIssue{
			Problem:  stringVal(ti, "problem"),
			Severity: domain.Severity(stringVal(ti, "severity")),
			Fix:      stringVal(ti, "fix"),
		}
	}
	if ww, ok := m["whatWorked"].([]interface{}); ok {
		for _, v := range ww {
			if s, ok := v.(string); ok {
				record.WhatWorked = append(record.WhatWorked, s)
			}
		}
	}
	if cl, ok := m["checklist"].(map[string]interface{}); ok {
		record.Checklist = make(map[string]domain.ChecklistItem, len(cl))
		for k, v := range cl {
			if item, ok := v.(map[string]interface{}); ok {
				passed, _ := item["passed"].(bool)
				record.Checklist[k] = domain.ChecklistItem{Passed: passed, Note: stringVal(item, "note")}
			}
		}
	}
	if pi, ok := m["promptInstructions"].([]interface{}); ok {
		for _, v := range pi {
			if s, ok := v.(string); ok {
				record.PromptInstructions = append(record.PromptInstructions, s)
			}
		}
	}
	return record
}

func stringVal(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func floatVal(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	f, _ := m[key].(float64)
	return f
}

func snapshotToStorage(requestID string, s domain.IterationSnapshot, id string) *models.IterationSnapshotModel {
	evaluations := make(models.JSONBList, len(s.Evaluations))
	for i, e := range s.Evaluations {
		evaluations[i] = evaluationToJSONB(e)
	}
	return &models.IterationSnapshotModel{
		ID:                   id,
		RequestID:            requestID,
		IterationNumber:      s.IterationNumber,
		OptimizedPrompt:      s.OptimizedPrompt,
		Mode:                 string(s.Mode),
		EditSourceImageID:    s.EditSourceImageID,
		ConsecutiveEditCount: s.ConsecutiveEditCount,
		SelectedImageID:      s.SelectedImageID,
		AggregateScore:       s.AggregateScore,
		Evaluations:          evaluations,
		CreatedAt:            s.CreatedAt,
	}
}

func snapshotFromStorage(m *models.IterationSnapshotModel) domain.IterationSnapshot {
	evaluations := make([]domain.EvaluationRecord, len(m.Evaluations))
	for i, raw := range m.Evaluations {
		evaluations[i] = evaluationFromJSONB(raw)
	}
	return domain.IterationSnapshot{
		IterationNumber:      m.IterationNumber,
		OptimizedPrompt:      m.OptimizedPrompt,
		Mode:                 domain.IterationMode(m.Mode),
		EditSourceImageID:    m.EditSourceImageID,
		ConsecutiveEditCount: m.ConsecutiveEditCount,
		SelectedImageID:      m.SelectedImageID,
		AggregateScore:       m.AggregateScore,
		Evaluations:          evaluations,
		CreatedAt:            m.CreatedAt,
	}
}

func imageToStorage(img domain.GeneratedImage) *models.GeneratedImageModel {
	return &models.GeneratedImageModel{
		ID:              img.ID,
		RequestID:       img.RequestID,
		IterationNumber: img.IterationNumber,
		StorageKey:      img.StorageKey,
		PublicURL:       img.PublicURL,
		PromptUsed:      img.PromptUsed,
		MimeType:        img.MimeType,
		FileSizeBytes:   img.FileSizeBytes,
		CreatedAt:       img.CreatedAt,
	}
}

func imageFromStorage(m *models.GeneratedImageModel) domain.GeneratedImage {
	return domain.GeneratedImage{
		ID:              m.ID,
		RequestID:       m.RequestID,
		IterationNumber: m.IterationNumber,
		StorageKey:      m.StorageKey,
		PublicURL:       m.PublicURL,
		PromptUsed:      m.PromptUsed,
		MimeType:        m.MimeType,
		FileSizeBytes:   m.FileSizeBytes,
		CreatedAt:       m.CreatedAt,
	}
}

func agentFromStorage(m *models.AgentModel) domain.Agent {
	docs := make([]domain.AgentDocument, len(m.Documents))
	for i, d := range m.Documents {
		docs[i] = agentDocumentFromStorage(d)
	}
	return domain.Agent{
		ID:                   m.ID,
		OrganizationID:       m.OrganizationID,
		Name:                 m.Name,
		SystemPrompt:         m.SystemPrompt,
		JudgePrompt:          m.JudgePrompt,
		ScoringWeight:        m.ScoringWeight,
		CanJudge:             m.CanJudge,
		EvaluationCategories: []string(m.EvaluationCategories),
		RAG:                  domain.RAGConfig{TopK: m.RAGTopK, SimilarityThreshold: m.RAGSimilarityThreshold},
		ModelTier:            domain.ModelTier(m.ModelTier),
		Documents:            docs,
	}
}

func agentDocumentFromStorage(m *models.AgentDocumentModel) domain.AgentDocument {
	chunks := make([]domain.DocumentChunk, len(m.Chunks))
	for i, c := range m.Chunks {
		embedding := make([]float64, len(c.Embedding))
		for j, v := range c.Embedding {
			if f, ok := v.(float64); ok {
				embedding[j] = f
			}
		}
		chunks[i] = domain.DocumentChunk{ID: c.ID, ChunkIndex: c.ChunkIndex, Content: c.Content, Embedding: embedding}
	}
	return domain.AgentDocument{ID: m.ID, AgentID: m.AgentID, Name: m.Name, Chunks: chunks}
}

func optimizerFromStorage(m *models.PromptOptimizerModel) *domain.PromptOptimizerConfig {
	return &domain.PromptOptimizerConfig{
		SystemPrompt: m.SystemPrompt,
		Model:        m.Model,
		Temperature:  m.Temperature,
		MaxTokens:    m.MaxTokens,
	}
}

func optimizerToStorage(cfg *domain.PromptOptimizerConfig) *models.PromptOptimizerModel {
	return &models.PromptOptimizerModel{
		ID:           models.SingletonOptimizerID,
		SystemPrompt: cfg.SystemPrompt,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}
}
