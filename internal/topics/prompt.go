package topics

import (
	"fmt"
	"strings"
)

// DefaultDomain names the chatbot's subject in the prompt.
const DefaultDomain = "Historia de Venezuela"

// BuildPrompt renders the analysis request for one batch of conversations.
func BuildPrompt(domain string, batch []Conversation) string {
	if domain == "" {
		domain = DefaultDomain
	}
	blocks := make([]string, 0, len(batch))
	for _, c := range batch {
		blocks = append(blocks, fmt.Sprintf("[%s] Conversación: %s\nMensajes: %s",
			c.ID, c.Title, strings.Join(c.Messages, " | ")))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analiza las siguientes conversaciones de un chatbot sobre %s y extrae los temas principales consultados.\n\n", domain)
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString(`

Por favor, identifica los 10-15 temas más relevantes y agrúpalos por categoría temática (por ejemplo: personajes históricos, eventos, lugares, conceptos, etc.).

Cada conversación va precedida de su identificador entre corchetes. Para cada tema, indica en "conversation_ids" los identificadores de las conversaciones donde aparece.

Responde ÚNICAMENTE con un JSON en este formato:
{
  "topics": [
    {
      "name": "Nombre del tema",
      "category": "Categoría",
      "relevance": 0.95,
      "conversation_ids": ["id"]
    }
  ]
}`)
	return b.String()
}
