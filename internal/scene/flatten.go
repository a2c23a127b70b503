package scene

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/Faultbox/usdflat/internal/logger"
	"github.com/Faultbox/usdflat/pkg/usd"
)

// Traversal errors. Both abort the flattening run.
var (
	ErrCyclicInstancing = errors.New("cyclic instancing: prototype expands into itself")
	ErrMaxDepthExceeded = errors.New("maximum traversal depth exceeded")
)

// DefaultMaxDepth bounds hierarchy depth plus nested instancer expansions.
const DefaultMaxDepth = 256

// degenerateQuatLenSqr is the float32 machine epsilon. Orientations whose
// squared length does not exceed it are treated as identity.
const degenerateQuatLenSqr = 1.1920929e-07

// Options controls a flattening run.
type Options struct {
	// MaxDepth limits traversal depth. Zero means unlimited.
	MaxDepth int
	// DetectCycles fails the run when an instancer prototype is expanded
	// inside its own expansion.
	DetectCycles bool
}

// DefaultOptions returns the guarded defaults.
func DefaultOptions() Options {
	return Options{MaxDepth: DefaultMaxDepth, DetectCycles: true}
}

// FetchStage opens the stage at path and flattens it.
func FetchStage(path string, opts Options) (*SceneData, error) {
	stage, err := usd.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stage: %w", err)
	}
	return Flatten(stage, opts)
}

// Flatten walks the stage depth-first from the pseudo-root and returns every
// mesh occurrence with its world transform. Each call owns its own state, so
// separate stages can be flattened concurrently.
func Flatten(stage *usd.Stage, opts Options) (*SceneData, error) {
	b := &builder{
		stage:     stage,
		opts:      opts,
		log:       logger.Named("scene"),
		meshIndex: make(map[string]int),
	}
	if err := b.run(); err != nil {
		return nil, err
	}

	b.log.Debug("flattened stage",
		zap.Int("meshes", len(b.scene.Meshes)),
		zap.Int("instances", len(b.scene.Instances)),
	)
	return &b.scene, nil
}

// workItem is one pending prim visit.
type workItem struct {
	prim   *usd.Prim
	parent mgl64.Mat4
	// chain lists the prototype paths being expanded around this prim,
	// outermost first.
	chain []usd.Path
	depth int
}

// builder accumulates the result of one flattening run.
type builder struct {
	stage     *usd.Stage
	opts      Options
	log       *zap.Logger
	scene     SceneData
	meshIndex map[string]int
}

func (b *builder) run() error {
	stack := []workItem{{prim: b.stage.PseudoRoot(), parent: mgl64.Ident4()}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if b.opts.MaxDepth > 0 && it.depth > b.opts.MaxDepth {
			return fmt.Errorf("%w: %d at %s", ErrMaxDepthExceeded, b.opts.MaxDepth, it.prim.Path())
		}

		world := worldTransform(it.prim, it.parent)

		var next []workItem
		switch it.prim.TypeName() {
		case usd.TypeMesh:
			b.addInstance(it.prim, world)
			continue

		case usd.TypePointInstancer:
			expanded, err := b.expandInstancer(it, world)
			if err != nil {
				return err
			}
			next = expanded

		default:
			for _, child := range it.prim.Children() {
				next = append(next, workItem{
					prim:   child,
					parent: world,
					chain:  it.chain,
					depth:  it.depth + 1,
				})
			}
		}

		// Push in reverse so items pop in visit order.
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return nil
}

// worldTransform computes parent * local for p.
func worldTransform(p *usd.Prim, parent mgl64.Mat4) mgl64.Mat4 {
	local := localTransform(p)
	if usd.ResetsXformStack(p) {
		return local
	}
	return parent.Mul4(local)
}

// localTransform resolves the prim's own transform in column-vector
// convention. The authored matrix is stored row-vector style and must be
// transposed.
func localTransform(p *usd.Prim) mgl64.Mat4 {
	if m, ok := usd.LocalTransform(p); ok {
		return m
	}
	if raw, err := usd.GetAttribute[usd.Matrix4d](p, usd.AttrTransform); err == nil {
		return raw.Mat4().Transpose()
	}
	return mgl64.Ident4()
}

// meshFor returns the index of the mesh at prim's path, extracting it on
// first encounter.
func (b *builder) meshFor(prim *usd.Prim) int {
	key := string(prim.Path())
	if idx, ok := b.meshIndex[key]; ok {
		return idx
	}
	idx := len(b.scene.Meshes)
	b.scene.Meshes = append(b.scene.Meshes, ExtractMesh(prim))
	b.meshIndex[key] = idx
	return idx
}

func (b *builder) addInstance(prim *usd.Prim, world mgl64.Mat4) {
	b.scene.Instances = append(b.scene.Instances, MeshInstance{
		MeshIndex: b.meshFor(prim),
		Transform: toRows(world),
	})
}

// toRows narrows a column-vector matrix to row-major float32 storage.
func toRows(m mgl64.Mat4) [4][4]float32 {
	var out [4][4]float32
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r][c] = float32(m.At(r, c))
		}
	}
	return out
}

// expandInstancer returns one work item per (prototype slot, matching point),
// slot-major, each parented to world * TRS(point).
func (b *builder) expandInstancer(it workItem, world mgl64.Mat4) ([]workItem, error) {
	prim := it.prim
	pts := readInstancerPoints(prim)

	rel := prim.Relationship(usd.RelPrototypes)
	if rel == nil {
		b.log.Debug("point instancer without prototypes", zap.String("path", string(prim.Path())))
		return nil, nil
	}

	var items []workItem
	for slot, target := range rel.Targets {
		proto := b.stage.PrimAtPath(target)
		if proto == nil {
			b.log.Warn("prototype not found",
				zap.String("instancer", string(prim.Path())),
				zap.String("prototype", string(target)),
			)
			continue
		}
		// A slot is only checked for cycles once a point selects it.
		var chain []usd.Path
		n := 0
		for point, idx := range pts.protoIndices {
			if idx != slot {
				continue
			}
			if chain == nil {
				if b.opts.DetectCycles && slices.Contains(it.chain, target) {
					return nil, fmt.Errorf("%w: %s targets %s", ErrCyclicInstancing, prim.Path(), target)
				}
				chain = append(slices.Clone(it.chain), target)
			}
			items = append(items, workItem{
				prim:   proto,
				parent: world.Mul4(pts.trs(point)),
				chain:  chain,
				depth:  it.depth + 1,
			})
			n++
		}
		b.log.Debug("expanded prototype",
			zap.String("instancer", string(prim.Path())),
			zap.String("prototype", string(target)),
			zap.Int("slot", slot),
			zap.Int("points", n),
		)
	}
	return items, nil
}

// instancerPoints holds the per-point arrays of a PointInstancer. Any of them
// may be shorter than protoIndices.
type instancerPoints struct {
	protoIndices []int
	positions    [][3]float32
	scales       [][3]float32
	orientations []mgl64.Quat
}

func readInstancerPoints(prim *usd.Prim) instancerPoints {
	var pts instancerPoints
	var err error
	if pts.protoIndices, err = readInts(prim.Attribute(usd.AttrProtoIndices)); err != nil {
		logUnreadable(prim, usd.AttrProtoIndices, err)
	}
	if pts.positions, err = readVec3s(prim.Attribute(usd.AttrPositions)); err != nil {
		logUnreadable(prim, usd.AttrPositions, err)
	}
	if pts.scales, err = readVec3s(prim.Attribute(usd.AttrScales)); err != nil {
		logUnreadable(prim, usd.AttrScales, err)
	}
	pts.orientations = decodeOrientations(prim.Attribute(usd.AttrOrientations))
	return pts
}

// trs builds translate * rotate * scale for one point, substituting defaults
// for missing entries.
func (p *instancerPoints) trs(i int) mgl64.Mat4 {
	pos := [3]float32{0, 0, 0}
	if i < len(p.positions) {
		pos = p.positions[i]
	}
	scale := [3]float32{1, 1, 1}
	if i < len(p.scales) {
		scale = p.scales[i]
	}
	rot := mgl64.QuatIdent()
	if i < len(p.orientations) {
		rot = p.orientations[i]
	}
	return composeTRS(pos, rot, scale)
}

// composeTRS applies scale, then rotation, then translation. The rotation is
// normalized first; a degenerate one becomes identity.
func composeTRS(pos [3]float32, rot mgl64.Quat, scale [3]float32) mgl64.Mat4 {
	if rot.Dot(rot) <= degenerateQuatLenSqr {
		rot = mgl64.QuatIdent()
	} else {
		rot = rot.Normalize()
	}
	t := mgl64.Translate3D(float64(pos[0]), float64(pos[1]), float64(pos[2]))
	s := mgl64.Scale3D(float64(scale[0]), float64(scale[1]), float64(scale[2]))
	return t.Mul4(rot.Mat4()).Mul4(s)
}

// decodeOrientations reads instancer orientations stored as quatf, quatd or
// quath arrays, in that order of preference. Nil means no usable rotation
// was authored, so every point gets identity.
func decodeOrientations(attr *usd.Attribute) []mgl64.Quat {
	if qs, err := usd.Get[[]usd.Quatf](attr); err == nil {
		return convertQuats(qs)
	}
	if qs, err := usd.Get[[]usd.Quatd](attr); err == nil {
		return convertQuats(qs)
	}
	if qs, err := usd.Get[[]usd.Quath](attr); err == nil {
		return convertQuats(qs)
	}
	return nil
}

func convertQuats[Q interface{ Quat() mgl64.Quat }](qs []Q) []mgl64.Quat {
	out := make([]mgl64.Quat, len(qs))
	for i, q := range qs {
		out[i] = q.Quat()
	}
	return out
}
