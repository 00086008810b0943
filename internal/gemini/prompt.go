package gemini

import "fmt"

// defaultTrendingText fills the prompt when no trending terms are supplied.
const defaultTrendingText = "No specific trending terms provided"

// promptTemplate asks for exactly five delimited Title/Format/Angle sections.
const promptTemplate = `You are a content strategist assistant. Based on the following trending topics and keyword, generate 5 highly creative and relevant content ideas. Focus on originality, engagement, and trend relevance.

Main Keyword: "%s"

Trending Terms (from Google Trends): %s

Use a mix of formats like videos, blog posts, carousels, or threads. Vary the approach: practical, emotional, data-driven, controversial, or inspiring.

For each idea, give:

Title: [Catchy, specific, trend-aware title]  
Format: [Blog, Video, Twitter Thread, Reel, etc.]  
Angle: [Unique POV or creative hook]

Respond in this format for 5 content ideas:
---
Title:  
Format:  
Angle:
---`

// BuildPrompt renders the generation prompt for a keyword and optional trends.
func BuildPrompt(mainKeyword, trendingKeywords string) string {
	trending := trendingKeywords
	if trending == "" {
		trending = defaultTrendingText
	}
	return fmt.Sprintf(promptTemplate, mainKeyword, trending)
}
