package index

// noopIndex is the baseline strategy: no index is maintained at all. The
// engine detects it via Len() == 0 / Peek() == false and falls back to
// sampling its field store during expiration sweeps.
type noopIndex struct{}

func (noopIndex) Insert(uint64, string)         {}
func (noopIndex) Update(uint64, uint64, string) {}
func (noopIndex) Delete(uint64, string)         {}
func (noopIndex) Rename(uint64, string, string) {}
func (noopIndex) Min() (uint64, bool)           { return 0, false }
func (noopIndex) Peek() (uint64, string, bool)  { return 0, "", false }
func (noopIndex) Contains(string) bool          { return false }
func (noopIndex) Len() int                      { return 0 }
