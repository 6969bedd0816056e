package graph

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ctessum/geom/encoding/geojson"
)

// Node is one vertex of an encoded graph. Literal arguments go in Args;
// child expressions are referenced by node id in Refs.
type Node struct {
	Op   string            `json:"op"`
	Args map[string]any    `json:"args,omitempty"`
	Refs map[string]string `json:"refs,omitempty"`
}

// DAG is the wire form of an expression: a node table plus the id of the
// node whose value is requested. Structurally identical subexpressions share
// one node.
type DAG struct {
	Result string          `json:"result"`
	Nodes  map[string]Node `json:"nodes"`
}

// Encode flattens an expression tree into a deduplicated DAG.
func Encode(root Expr) (*DAG, error) {
	e := &encoder{
		dag:  &DAG{Nodes: make(map[string]Node)},
		seen: make(map[string]string),
	}
	id, err := e.encode(root)
	if err != nil {
		return nil, err
	}
	e.dag.Result = id
	return e.dag, nil
}

type encoder struct {
	dag  *DAG
	seen map[string]string // canonical node JSON -> id
}

func (e *encoder) encode(x Expr) (string, error) {
	n, err := e.node(x)
	if err != nil {
		return "", err
	}
	key, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("encode %s node: %w", n.Op, err)
	}
	if id, ok := e.seen[string(key)]; ok {
		return id, nil
	}
	id := "n" + strconv.Itoa(len(e.dag.Nodes))
	e.seen[string(key)] = id
	e.dag.Nodes[id] = n
	return id, nil
}

// refs encodes child expressions in argument order.
func (e *encoder) refs(kv ...any) (map[string]string, error) {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		name := kv[i].(string)
		child, _ := kv[i+1].(Expr)
		if child == nil {
			continue
		}
		id, err := e.encode(child)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = id
	}
	return out, nil
}

func (e *encoder) node(x Expr) (Node, error) {
	var (
		n   Node
		err error
	)
	switch v := x.(type) {
	case Literal:
		n = Node{Op: "literal", Args: map[string]any{"value": v.Value}}
	case Asset:
		op := "image"
		if v.Collection {
			op = "collection"
		}
		n = Node{Op: op, Args: map[string]any{"id": v.ID}}
	case Constant:
		n.Op = "constant"
		n.Refs, err = e.refs("value", v.Value)
	case Geometry:
		var g *geojson.Geometry
		g, err = toGeoJSON(v.Shape)
		n = Node{Op: "geometry", Args: map[string]any{"geojson": g}}
	case Var:
		n = Node{Op: "var", Args: map[string]any{"name": v.Name}}
	case FilterDate:
		n.Op = "filterDate"
		n.Refs, err = e.refs("collection", v.Collection, "start", v.Start, "end", v.End)
	case FilterBounds:
		n.Op = "filterBounds"
		n.Refs, err = e.refs("collection", v.Collection, "region", v.Region)
	case FilterProperty:
		n = Node{Op: "filterProperty", Args: map[string]any{"property": v.Property, "cmp": string(v.Cmp), "value": v.Value}}
		n.Refs, err = e.refs("collection", v.Collection)
	case SortLimit:
		n = Node{Op: "sortLimit", Args: map[string]any{"property": v.Property, "ascending": v.Ascending, "limit": v.Limit}}
		n.Refs, err = e.refs("collection", v.Collection)
	case Nearest:
		n = Node{Op: "nearest", Args: map[string]any{"limit": v.Limit}}
		n.Refs, err = e.refs("collection", v.Collection, "time", v.Time)
	case Map:
		n = Node{Op: "map", Args: map[string]any{"param": v.Param}}
		n.Refs, err = e.refs("collection", v.Collection, "body", v.Body)
	case Combine:
		n.Op = "combine"
		n.Refs, err = e.refs("primary", v.Primary, "secondary", v.Secondary)
	case Reduce:
		n = Node{Op: "reduce", Args: map[string]any{"reducer": string(v.Reducer)}}
		n.Refs, err = e.refs("collection", v.Collection)
	case First:
		n.Op = "first"
		n.Refs, err = e.refs("collection", v.Collection)
	case Size:
		n.Op = "size"
		n.Refs, err = e.refs("collection", v.Collection)
	case At:
		n = Node{Op: "at", Args: map[string]any{"index": v.Index}}
		n.Refs, err = e.refs("collection", v.Collection)
	case Select:
		n = Node{Op: "select", Args: map[string]any{"bands": v.Bands}}
		n.Refs, err = e.refs("image", v.Image)
	case Rename:
		n = Node{Op: "rename", Args: map[string]any{"names": v.Names}}
		n.Refs, err = e.refs("image", v.Image)
	case AddBands:
		n.Op = "addBands"
		n.Refs, err = e.refs("image", v.Image, "bands", v.Bands)
	case Clip:
		n.Op = "clip"
		n.Refs, err = e.refs("image", v.Image, "region", v.Region)
	case Binary:
		n.Op = string(v.Op)
		n.Refs, err = e.refs("left", v.Left, "right", v.Right)
	case Unary:
		n.Op = string(v.Op)
		n.Refs, err = e.refs("operand", v.Operand)
	case Where:
		n.Op = "where"
		n.Refs, err = e.refs("image", v.Image, "test", v.Test, "value", v.Value)
	case UpdateMask:
		n.Op = "updateMask"
		n.Refs, err = e.refs("image", v.Image, "mask", v.Mask)
	case UnitScale:
		n.Op = "unitScale"
		n.Refs, err = e.refs("image", v.Image, "low", v.Low, "high", v.High)
	case Interpolate:
		n = Node{Op: "interpolate", Args: map[string]any{"toLow": v.ToLow, "toHigh": v.ToHigh, "clamp": v.Clamp}}
		n.Refs, err = e.refs("image", v.Image, "fromLow", v.FromLow, "fromHigh", v.FromHigh)
	case Remap:
		n = Node{Op: "remap", Args: map[string]any{"from": v.From, "to": v.To}}
		if v.Default != nil {
			n.Args["default"] = *v.Default
		}
		n.Refs, err = e.refs("image", v.Image)
	case Resample:
		n = Node{Op: "resample", Args: map[string]any{"method": v.Method}}
		n.Refs, err = e.refs("image", v.Image)
	case NeighborhoodMean:
		n = Node{Op: "neighborhoodMean", Args: map[string]any{"radius": v.Radius, "normalize": v.Normalize}}
		n.Refs, err = e.refs("image", v.Image)
	case NormalizedDifference:
		n = Node{Op: "normalizedDifference", Args: map[string]any{"bands": []string{v.A, v.B}}}
		n.Refs, err = e.refs("image", v.Image)
	case Property:
		n = Node{Op: "property", Args: map[string]any{"name": v.Name}}
		n.Refs, err = e.refs("image", v.Image)
	case ReduceRegion:
		args := map[string]any{"reducer": string(v.Reducer.Kind), "scale": v.Scale}
		if len(v.Reducer.Percentiles) > 0 {
			args["percentiles"] = v.Reducer.Percentiles
		}
		n = Node{Op: "reduceRegion", Args: args}
		n.Refs, err = e.refs("image", v.Image, "region", v.Region)
	case Get:
		n = Node{Op: "get", Args: map[string]any{"key": v.Key}}
		n.Refs, err = e.refs("dict", v.Dict)
	case Branch:
		n.Op = "branch"
		n.Refs, err = e.refs("cond", v.Cond, "then", v.Then, "else", v.Else)
	case nil:
		return Node{}, fmt.Errorf("nil expression")
	default:
		return Node{}, fmt.Errorf("unsupported expression %T", x)
	}
	if err != nil {
		return Node{}, fmt.Errorf("%s: %w", n.Op, err)
	}
	return n, nil
}
