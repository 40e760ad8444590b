package recognition

// LabelRegistry - биекция между плотными метками классификатора [0, N)
// и ID пользователей. Метки живут ровно столько, сколько одна обученная
// модель: при каждой пересборке реестр создается заново.
type LabelRegistry struct {
	identities []string
	labels     map[string]int
}

// NewLabelRegistry создает пустой реестр
func NewLabelRegistry() *LabelRegistry {
	return &LabelRegistry{labels: make(map[string]int)}
}

// Register выдает identity следующую свободную метку.
// Повторный вызов для той же identity возвращает уже выданную метку.
func (r *LabelRegistry) Register(identity string) int {
	if label, ok := r.labels[identity]; ok {
		return label
	}
	label := len(r.identities)
	r.identities = append(r.identities, identity)
	r.labels[identity] = label
	return label
}

// Resolve возвращает identity по метке
func (r *LabelRegistry) Resolve(label int) (string, bool) {
	if r == nil || label < 0 || label >= len(r.identities) {
		return "", false
	}
	return r.identities[label], true
}

// Len - количество зарегистрированных identity
func (r *LabelRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.identities)
}

// Identities возвращает копию списка identity в порядке меток
func (r *LabelRegistry) Identities() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.identities))
	copy(out, r.identities)
	return out
}
