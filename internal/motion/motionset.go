package motion

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/animgraph/internal/pose"
)

// MotionSet maps motion ids to motions. Lookups are safe for concurrent use.
type MotionSet struct {
	mu      sync.RWMutex
	name    string
	motions map[string]Motion
}

// NewMotionSet creates an empty motion set.
func NewMotionSet(name string) *MotionSet {
	return &MotionSet{
		name:    name,
		motions: make(map[string]Motion),
	}
}

// Name returns the set's name.
func (s *MotionSet) Name() string {
	return s.name
}

// Add registers a motion, replacing any motion with the same id.
func (s *MotionSet) Add(m Motion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motions[m.ID()] = m
}

// Remove unregisters a motion.
func (s *MotionSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.motions, id)
}

// Find returns the motion with the given id or nil.
func (s *MotionSet) Find(id string) Motion {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.motions[id]
}

// IDs returns the sorted motion ids.
func (s *MotionSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.motions))
	for id := range s.motions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type motionSetFile struct {
	Version  int          `yaml:"version"`
	Name     string       `yaml:"name"`
	Skeleton skeletonSpec `yaml:"skeleton"`
	Motions  []motionSpec `yaml:"motions"`
}

type skeletonSpec struct {
	Name   string      `yaml:"name"`
	Joints []jointSpec `yaml:"joints"`
}

type jointSpec struct {
	Name   string    `yaml:"name"`
	Parent string    `yaml:"parent"`
	Pos    []float64 `yaml:"pos"`
	Rot    []float64 `yaml:"rot"`
	Scale  []float64 `yaml:"scale"`
}

type motionSpec struct {
	ID        string      `yaml:"id"`
	Duration  float64     `yaml:"duration"`
	RootJoint string      `yaml:"root_joint"`
	Tracks    []trackSpec `yaml:"tracks"`
	Events    []eventSpec `yaml:"events"`
}

type trackSpec struct {
	Joint string    `yaml:"joint"`
	Keys  []keySpec `yaml:"keys"`
}

type keySpec struct {
	T     float64   `yaml:"t"`
	Pos   []float64 `yaml:"pos"`
	Rot   []float64 `yaml:"rot"`
	Scale []float64 `yaml:"scale"`
}

type eventSpec struct {
	Name   string  `yaml:"name"`
	Mirror string  `yaml:"mirror"`
	Start  float64 `yaml:"start"`
	End    float64 `yaml:"end"`
	Sync   bool    `yaml:"sync"`
}

// LoadMotionSet reads a motion set and its skeleton from a YAML file.
func LoadMotionSet(path string) (*MotionSet, *pose.Skeleton, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read motion set file: %w", err)
	}
	return ParseMotionSet(b)
}

// ParseMotionSet decodes a YAML motion set document.
func ParseMotionSet(b []byte) (*MotionSet, *pose.Skeleton, error) {
	var f motionSetFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse motion set YAML: %w", err)
	}
	if f.Version != 1 {
		return nil, nil, fmt.Errorf("unsupported motion set version: %d", f.Version)
	}

	skel, err := buildSkeleton(f.Skeleton)
	if err != nil {
		return nil, nil, err
	}

	set := NewMotionSet(f.Name)
	for _, ms := range f.Motions {
		if ms.ID == "" {
			return nil, nil, fmt.Errorf("motion without id")
		}
		if ms.Duration < 0 {
			return nil, nil, fmt.Errorf("motion %s: negative duration", ms.ID)
		}
		root := ms.RootJoint
		if root == "" && skel.NumJoints() > 0 {
			root = skel.Joint(0).Name
		}
		m := NewKeyframeMotion(ms.ID, ms.Duration, root)
		for _, tr := range ms.Tracks {
			for _, k := range tr.Keys {
				t, err := transformFromSpec(k.Pos, k.Rot, k.Scale)
				if err != nil {
					return nil, nil, fmt.Errorf("motion %s joint %s: %w", ms.ID, tr.Joint, err)
				}
				m.AddKey(tr.Joint, Key{Time: k.T, Transform: t})
			}
		}
		for _, es := range ms.Events {
			m.AddEvent(NewEvent(es.Name, es.Mirror, es.Start, es.End), es.Sync)
		}
		set.Add(m)
	}
	return set, skel, nil
}

func buildSkeleton(s skeletonSpec) (*pose.Skeleton, error) {
	joints := make([]pose.Joint, 0, len(s.Joints))
	bind := make([]pose.Transform, 0, len(s.Joints))
	index := make(map[string]int, len(s.Joints))
	for i, js := range s.Joints {
		parent := -1
		if js.Parent != "" {
			p, ok := index[js.Parent]
			if !ok {
				return nil, fmt.Errorf("joint %s: parent %s must be declared before its children", js.Name, js.Parent)
			}
			parent = p
		}
		t, err := transformFromSpec(js.Pos, js.Rot, js.Scale)
		if err != nil {
			return nil, fmt.Errorf("joint %s: %w", js.Name, err)
		}
		index[js.Name] = i
		joints = append(joints, pose.Joint{Name: js.Name, Parent: parent})
		bind = append(bind, t)
	}
	return pose.NewSkeleton(s.Name, joints, bind), nil
}

// transformFromSpec builds a transform from [x y z] position, [x y z w]
// rotation and [x y z] scale lists. Missing lists fall back to identity.
func transformFromSpec(pos, rot, scale []float64) (pose.Transform, error) {
	t := pose.Identity()
	if len(pos) > 0 {
		if len(pos) != 3 {
			return t, fmt.Errorf("pos needs 3 components, got %d", len(pos))
		}
		t.Position = r3.Vec{X: pos[0], Y: pos[1], Z: pos[2]}
	}
	if len(rot) > 0 {
		if len(rot) != 4 {
			return t, fmt.Errorf("rot needs 4 components, got %d", len(rot))
		}
		t.Rotation = pose.Normalize(quat.Number{Real: rot[3], Imag: rot[0], Jmag: rot[1], Kmag: rot[2]})
	}
	if len(scale) > 0 {
		if len(scale) != 3 {
			return t, fmt.Errorf("scale needs 3 components, got %d", len(scale))
		}
		t.Scale = r3.Vec{X: scale[0], Y: scale[1], Z: scale[2]}
	}
	return t, nil
}
