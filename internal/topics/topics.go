// Package topics labels conversations with discussion topics extracted by a
// language model and stores them for the topics chart.
package topics

// Topic is one label returned by the model. ConversationIDs, when present,
// restricts the label to those conversations of the batch.
type Topic struct {
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	Relevance       float64  `json:"relevance"`
	ConversationIDs []string `json:"conversation_ids,omitempty"`
}

// Conversation is the model input for one conversation: its title and the
// user messages in order.
type Conversation struct {
	ID       string
	Title    string
	Messages []string
}

// Result is returned by Analyze.
type Result struct {
	Success        bool    `json:"success"`
	TopicsAnalyzed int     `json:"topicsAnalyzed"`
	TopicsSaved    int     `json:"topicsSaved"`
	Topics         []Topic `json:"topics"`
}

// Assignment is a topic to insert for a single conversation.
type Assignment struct {
	ConversationID string
	Name           string
	Category       string
	Relevance      float64
}
