package analyzer

import (
	"context"
	"fmt"
	"strings"

	"scribe/internal/logging"
)

const speakerPromptTemplate = `Please analyze this meeting transcript and identify different speakers. Add speaker labels that preserve ALL the original content.

CRITICAL REQUIREMENTS:
1. Keep 100%% of the original transcript content - do not summarize, omit, or paraphrase ANY spoken words
2. Only add speaker labels like "Speaker A:", "Speaker B:", etc. at the beginning of speaker turns
3. Preserve all conversation details, technical terms, names, and complete sentences
4. Do not replace any content with summaries
5. If you cannot complete the full formatting due to length, return the original transcript unchanged

Original transcript:
%s

Please return the COMPLETE transcript with only speaker labels added, maintaining every single word from the original.`

const speakerChunkPromptTemplate = `Add speaker labels to this transcript chunk. Keep ALL original content exactly as is.

This is chunk %d of %d from a longer meeting transcript.

CRITICAL REQUIREMENTS:
1. Add ONLY speaker labels like "Speaker A:", "Speaker B:" at the beginning of speaker turns
2. Keep 100%% of the original words - no changes, no summarization, no corrections
3. Do NOT add any commentary, explanations, or chunk references
4. If you cannot complete the full formatting, return the original chunk unchanged

Original chunk:
%s

RETURN ONLY THE TRANSCRIPT WITH SPEAKER LABELS - NO OTHER TEXT:`

// IdentifySpeakers returns the transcript with speaker labels added. Output
// that looks truncated fails the integrity guard and the untouched input is
// returned instead, so this never loses content. API failures also fall back
// to the original text.
func (c *Client) IdentifySpeakers(ctx context.Context, transcript string) (string, error) {
	c.logger.Info("identifying speakers", logging.Int("characters", len(transcript)))

	if len(transcript) > c.chunkThreshold {
		return c.identifySpeakersChunked(ctx, transcript)
	}
	return c.identifySpeakersSingle(ctx, transcript)
}

func (c *Client) identifySpeakersSingle(ctx context.Context, transcript string) (string, error) {
	labeled, err := c.complete(ctx, fmt.Sprintf(speakerPromptTemplate, transcript), maxSpeakerTokens)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("speaker identification failed, keeping original transcript", logging.Error(err))
		return transcript, nil
	}
	if float64(len(labeled)) < float64(len(transcript))*c.minOutputRatio {
		c.logger.Warn("speaker-labeled transcript looks truncated, keeping original",
			logging.Int("input", len(transcript)),
			logging.Int("output", len(labeled)))
		return transcript, nil
	}
	return labeled, nil
}

func (c *Client) identifySpeakersChunked(ctx context.Context, transcript string) (string, error) {
	chunks := splitIntoChunks(transcript, c.chunkSize, c.chunkOverlap)
	c.logger.Info("speaker identification in chunks", logging.Int("chunks", len(chunks)))

	labeled := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		out, err := c.complete(ctx, fmt.Sprintf(speakerChunkPromptTemplate, i+1, len(chunks), chunk), maxSpeakerTokens)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("speaker chunk failed, keeping original chunk",
				logging.Int("chunk", i+1), logging.Error(err))
			labeled = append(labeled, chunk)
			continue
		}
		if float64(len(out)) < float64(len(chunk))*c.minChunkRatio {
			c.logger.Warn("speaker chunk looks truncated, keeping original chunk",
				logging.Int("chunk", i+1))
			labeled = append(labeled, chunk)
			continue
		}
		labeled = append(labeled, out)
	}

	joined := strings.Join(labeled, "\n\n")
	if float64(len(joined)) < float64(len(transcript))*c.minJoinedRatio {
		c.logger.Warn("rejoined speaker transcript looks truncated, keeping original",
			logging.Int("input", len(transcript)),
			logging.Int("output", len(joined)))
		return transcript, nil
	}
	return joined, nil
}

// splitIntoChunks cuts text at sentence boundaries into pieces near
// chunkSize characters, carrying overlap characters of trailing context
// into the next chunk.
func splitIntoChunks(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return []string{text}
	}
	sentences := strings.Split(text, ". ")
	var chunks []string
	current := ""
	for _, sentence := range sentences {
		if len(current)+len(sentence) < chunkSize {
			current += sentence + ". "
			continue
		}
		if current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
		}
		if len(current) > overlap {
			current = current[len(current)-overlap:] + sentence + ". "
		} else {
			current = sentence + ". "
		}
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
