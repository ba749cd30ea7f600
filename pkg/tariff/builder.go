package tariff

// Builder accumulates a name and periods in any order and produces a valid
// Tariff. The zero value is ready to use.
type Builder struct {
	name    string
	periods []*Period

	tariff *Tariff
	data   []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Reset discards the name, the periods and any built result.
func (b *Builder) Reset() {
	*b = Builder{}
}

func (b *Builder) SetName(name string) {
	b.name = name
	b.invalidate()
}

// AddPeriod appends a period. Periods are sorted when the tariff is built.
func (b *Builder) AddPeriod(p *Period) {
	b.periods = append(b.periods, p)
	b.invalidate()
}

func (b *Builder) invalidate() {
	b.tariff = nil
	b.data = nil
}

// Tariff sorts the periods into canonical order, validates them and returns
// the built tariff. The result is cached until the builder is modified.
func (b *Builder) Tariff() (*Tariff, error) {
	if b.tariff != nil {
		return b.tariff, nil
	}
	sortPeriods(b.periods)
	t, err := New(b.name, b.periods)
	if err != nil {
		return nil, err
	}
	b.tariff = t
	return t, nil
}

// Bytes returns the encoded form of the built tariff.
func (b *Builder) Bytes() ([]byte, error) {
	if b.data != nil {
		return b.data, nil
	}
	t, err := b.Tariff()
	if err != nil {
		return nil, err
	}
	b.data = Encode(t)
	return b.data, nil
}
