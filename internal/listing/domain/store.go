package listing

// Partitions maps a partition name (all, normal, alarm, offline ...) to its records.
type Partitions map[string][]Record

// Store holds the fetched partitions of one view and which of them is active.
type Store struct {
	names  []string
	parts  Partitions
	active string
}

// NewStore creates a store with the given partition names; the first is active.
func NewStore(names ...string) *Store {
	s := &Store{parts: Partitions{}}
	for _, name := range names {
		s.addName(name)
	}
	if len(s.names) > 0 {
		s.active = s.names[0]
	}
	return s
}

func (s *Store) addName(name string) {
	if name == "" {
		return
	}
	if _, ok := s.parts[name]; ok {
		return
	}
	s.names = append(s.names, name)
	s.parts[name] = nil
}

// Replace swaps every partition for the fetched ones. Declared partitions
// missing from parts become empty.
func (s *Store) Replace(parts Partitions) {
	if s == nil {
		return
	}
	next := make(Partitions, len(s.names)+len(parts))
	for _, name := range s.names {
		next[name] = nil
	}
	s.parts = next
	for name, records := range parts {
		s.addName(name)
		s.parts[name] = records
	}
	if s.active == "" && len(s.names) > 0 {
		s.active = s.names[0]
	}
}

// Select makes name the active partition. Unknown names are rejected.
func (s *Store) Select(name string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.parts[name]; !ok {
		return false
	}
	s.active = name
	return true
}

// Active returns the active partition name.
func (s *Store) Active() string {
	if s == nil {
		return ""
	}
	return s.active
}

// Records returns the active partition.
func (s *Store) Records() []Record {
	if s == nil {
		return nil
	}
	return s.parts[s.active]
}

// Partition returns the records of a named partition.
func (s *Store) Partition(name string) []Record {
	if s == nil {
		return nil
	}
	return s.parts[name]
}

// Names returns the partition names in declaration order.
func (s *Store) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Counts returns the record count per partition.
func (s *Store) Counts() map[string]int {
	out := make(map[string]int)
	if s == nil {
		return out
	}
	for name, records := range s.parts {
		out[name] = len(records)
	}
	return out
}

// Patch overlays fields on every record whose idField equals id, in every
// partition. Patched partitions are rebuilt so earlier snapshots stay intact.
func (s *Store) Patch(idField, id string, fields map[string]any) int {
	if s == nil || id == "" {
		return 0
	}
	patched := 0
	for name, records := range s.parts {
		var next []Record
		for i, record := range records {
			if record.Text(idField) != id {
				continue
			}
			if next == nil {
				next = make([]Record, len(records))
				copy(next, records)
			}
			next[i] = record.With(fields)
			patched++
		}
		if next != nil {
			s.parts[name] = next
		}
	}
	return patched
}

// Find returns the first record whose idField equals id, searching the active
// partition before the others.
func (s *Store) Find(idField, id string) (Record, bool) {
	if s == nil || id == "" {
		return nil, false
	}
	for _, record := range s.parts[s.active] {
		if record.Text(idField) == id {
			return record, true
		}
	}
	for _, name := range s.names {
		if name == s.active {
			continue
		}
		for _, record := range s.parts[name] {
			if record.Text(idField) == id {
				return record, true
			}
		}
	}
	return nil, false
}
