package util

// StackInf is a LIFO stack used for iterative tree walks.
type StackInf struct {
	stA [20]interface{}
	st  []interface{}
	top int
}

func NewStackInf() *StackInf {
	s := &StackInf{top: -1}
	s.st = s.stA[:0]
	return s
}

func (s *StackInf) Push(v interface{}) {
	s.top++

	if s.top < len(s.st) {
		s.st[s.top] = v
	} else {
		s.st = append(s.st, v)
	}
}

func (s *StackInf) Len() int {
	return s.top + 1
}

func (s *StackInf) Peek() interface{} {
	if s.top == -1 {
		return nil
	}
	return s.st[s.top]
}

func (s *StackInf) Pop() interface{} {
	if s.top == -1 {
		return nil
	}

	s.top--
	return s.st[(s.top + 1)]
}
