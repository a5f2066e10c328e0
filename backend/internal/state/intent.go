package state

// IntentKind is the classified purpose of a user turn
type IntentKind string

const (
	IntentStoreMemory    IntentKind = "STORE_MEMORY"
	IntentQuestionAnswer IntentKind = "Q_AND_A"
	IntentMindMap        IntentKind = "MIND_MAP"
)

// Valid reports whether k is one of the three intents
func (k IntentKind) Valid() bool {
	switch k {
	case IntentStoreMemory, IntentQuestionAnswer, IntentMindMap:
		return true
	}
	return false
}

// Intent is the decoded reasoner output for one turn.
// Exactly one of StoreMemory, QuestionAnswer or MindMap.
type Intent interface {
	Kind() IntentKind
	// Proposal returns the nodes and edges the intent wants merged
	Proposal() ([]Node, []Edge)
	// Reply is the text shown to the user
	Reply() string
	isIntent()
}

// StoreMemory records a new fact
type StoreMemory struct {
	Nodes        []Node
	Edges        []Edge
	Concept      string
	Ack          string
	CenterNodeID string
}

func (StoreMemory) Kind() IntentKind             { return IntentStoreMemory }
func (i StoreMemory) Proposal() ([]Node, []Edge) { return i.Nodes, i.Edges }
func (i StoreMemory) Reply() string              { return i.Ack }
func (StoreMemory) isIntent()                    {}

// QuestionAnswer answers from retrieved memory
type QuestionAnswer struct {
	Nodes        []Node
	Edges        []Edge
	Answer       string
	CenterNodeID string
}

func (QuestionAnswer) Kind() IntentKind             { return IntentQuestionAnswer }
func (i QuestionAnswer) Proposal() ([]Node, []Edge) { return i.Nodes, i.Edges }
func (i QuestionAnswer) Reply() string              { return i.Answer }
func (QuestionAnswer) isIntent()                    {}

// MindMap is a bulk generated sub-graph
type MindMap struct {
	Nodes        []Node
	Edges        []Edge
	Confirmation string
	CenterNodeID string
}

func (MindMap) Kind() IntentKind             { return IntentMindMap }
func (i MindMap) Proposal() ([]Node, []Edge) { return i.Nodes, i.Edges }
func (i MindMap) Reply() string              { return i.Confirmation }
func (MindMap) isIntent()                    {}

// CenterNodeID returns the node the client should focus on, if any
func CenterNodeID(i Intent) string {
	switch v := i.(type) {
	case StoreMemory:
		return v.CenterNodeID
	case QuestionAnswer:
		return v.CenterNodeID
	case MindMap:
		return v.CenterNodeID
	}
	return ""
}
