package agent

// Node identifies a decision node of the orchestration graph.
// Nodes are identified by stable strings so they can be logged and traced.
type Node string

const (
	NodeClassify Node = "classify" // Decide whether the query is supported
	NodeAct      Node = "act"      // One agent loop pass
	NodeReflect  Node = "reflect"  // Advisory assessment after a tool result
	NodeFinalize Node = "finalize" // Produce the single FinalResult
	NodeDone     Node = "done"     // Terminal
)

// IsTerminal returns true if this is the terminal node.
func (n Node) IsTerminal() bool {
	return n == NodeDone
}

// CallsTools returns true if the node may execute tools.
func (n Node) CallsTools() bool {
	return n == NodeAct
}

// IsValid returns true if the node is a recognized node.
func (n Node) IsValid() bool {
	switch n {
	case NodeClassify, NodeAct, NodeReflect, NodeFinalize, NodeDone:
		return true
	default:
		return false
	}
}

// String returns the string representation of the node.
func (n Node) String() string {
	return string(n)
}

// AllNodes returns every node in graph order.
func AllNodes() []Node {
	return []Node{NodeClassify, NodeAct, NodeReflect, NodeFinalize, NodeDone}
}
