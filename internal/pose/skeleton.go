package pose

import "strings"

// Joint is one bone in a skeleton hierarchy.
type Joint struct {
	Name   string
	Parent int
}

// Skeleton describes the joint hierarchy and its bind pose.
type Skeleton struct {
	Name   string
	joints []Joint
	bind   *Pose
	mirror []int
	index  map[string]int
}

// NewSkeleton creates a skeleton. bind may be nil, in which case every joint
// binds at identity. Left/right mirror pairs are detected from the
// "Left"/"Right" and "_l"/"_r" naming conventions.
func NewSkeleton(name string, joints []Joint, bind []Transform) *Skeleton {
	s := &Skeleton{
		Name:   name,
		joints: append([]Joint(nil), joints...),
		bind:   New(len(joints)),
		mirror: make([]int, len(joints)),
		index:  make(map[string]int, len(joints)),
	}
	for i, j := range joints {
		s.index[j.Name] = i
		if i < len(bind) {
			s.bind.Local[i] = bind[i]
		}
	}
	for i, j := range joints {
		s.mirror[i] = i
		if other, ok := s.index[mirrorName(j.Name)]; ok {
			s.mirror[i] = other
		}
	}
	return s
}

// NumJoints returns the joint count.
func (s *Skeleton) NumJoints() int {
	return len(s.joints)
}

// Joint returns the joint at index i.
func (s *Skeleton) Joint(i int) Joint {
	return s.joints[i]
}

// JointIndex finds a joint by name.
func (s *Skeleton) JointIndex(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// BindPose returns the skeleton's bind pose. Callers must not modify it.
func (s *Skeleton) BindPose() *Pose {
	return s.bind
}

// MirrorIndex returns the joint mirrored to i, or i itself.
func (s *Skeleton) MirrorIndex(i int) int {
	if i < 0 || i >= len(s.mirror) {
		return i
	}
	return s.mirror[i]
}

func mirrorName(name string) string {
	switch {
	case strings.Contains(name, "Left"):
		return strings.Replace(name, "Left", "Right", 1)
	case strings.Contains(name, "Right"):
		return strings.Replace(name, "Right", "Left", 1)
	case strings.HasSuffix(name, "_l"):
		return strings.TrimSuffix(name, "_l") + "_r"
	case strings.HasSuffix(name, "_r"):
		return strings.TrimSuffix(name, "_r") + "_l"
	}
	return name
}
