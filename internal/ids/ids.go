package ids

import "github.com/segmentio/ksuid"

func New() string {
	return ksuid.New().String()
}

// Prefixed returns ids such as "BR-2Jd3..." used for library records.
func Prefixed(prefix string) string {
	return prefix + "-" + ksuid.New().String()
}
