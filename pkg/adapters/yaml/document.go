package yaml

// Document is the top level of a flow file.
type Document struct {
	Flows  []FlowDoc  `yaml:"flows"`
	Script *ScriptDoc `yaml:"script"`
}

// FlowDoc describes one flow. Name is the name calls and guards refer to;
// ID defaults to it.
type FlowDoc struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Autostart bool              `yaml:"autostart"`
	Metadata  map[string]string `yaml:"metadata"`
	Nodes     []NodeDoc         `yaml:"nodes"`
	Edges     []EdgeDoc         `yaml:"edges"`
}

// NodeDoc describes one node. Kind defaults to action when Action is set
// and to call when Call is set.
type NodeDoc struct {
	ID     string         `yaml:"id"`
	Name   string         `yaml:"name"`
	Kind   string         `yaml:"kind"`
	Action map[string]any `yaml:"action"`
	Call   *CallDoc       `yaml:"call"`
}

// CallDoc targets a start node of another flow.
type CallDoc struct {
	Flow  string `yaml:"flow"`
	Start string `yaml:"start"`
}

// EdgeDoc describes one edge. A missing When is always satisfied.
type EdgeDoc struct {
	ID   string `yaml:"id"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
	When any    `yaml:"when"`
}

// ScriptDoc is a run script. Each step is a map with a single operation key.
type ScriptDoc struct {
	Name  string           `yaml:"name"`
	Steps []map[string]any `yaml:"steps"`
}

type comparisonSpec struct {
	Object string `mapstructure:"object"`
	Value  any    `mapstructure:"value"`
}

type refSpec struct {
	Flow string `mapstructure:"flow"`
	Node string `mapstructure:"node"`
}

type setSpec struct {
	Object string `mapstructure:"object"`
	Value  any    `mapstructure:"value"`
}

type deriveSpec struct {
	Object  string   `mapstructure:"object"`
	Formula string   `mapstructure:"formula"`
	Inputs  []string `mapstructure:"inputs"`
}

type expectSpec struct {
	Active   []string       `mapstructure:"active"`
	Inactive []string       `mapstructure:"inactive"`
	Values   map[string]any `mapstructure:"values"`
	Missing  []string       `mapstructure:"missing"`
}
