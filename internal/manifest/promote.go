package manifest

import (
	"fmt"
	"sort"
	"strings"
)

// Promote returns a copy of m with variant digests filled in from digests,
// turning a DRAFT manifest into a RELEASABLE one. Keys are "os/arch" or a
// bare "os", which addresses the os's only variant. The input is not
// modified. Promote fails if a key matches no variant, a digest is malformed,
// or the result is still a draft.
func Promote(m *Manifest, version string, digests map[string]string) (*Manifest, error) {
	out := m.Clone()
	out.Normalize()
	if version != "" {
		out.Version = strings.TrimSpace(version)
	}

	keys := make([]string, 0, len(digests))
	for k := range digests {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		digest := strings.ToLower(strings.TrimSpace(digests[key]))
		if !IsHexDigest(digest) {
			return nil, fmt.Errorf("digest for %s must be 64 hexadecimal characters", key)
		}

		idx, err := out.variantIndex(key)
		if err != nil {
			return nil, err
		}
		out.Variants[idx].SHA256 = digest
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Version) == "" {
		return nil, fmt.Errorf("manifest %s still has no version", out.Name)
	}
	if missing := out.DraftVariants(); len(missing) > 0 {
		return nil, fmt.Errorf("manifest %s still has no digest for: %s", out.Name, strings.Join(missing, ", "))
	}
	return out, nil
}

// variantIndex finds the variant addressed by "os/arch" or "os".
func (m *Manifest) variantIndex(key string) (int, error) {
	osPart, archPart, hasArch := strings.Cut(key, "/")
	o, err := ParseOS(osPart)
	if err != nil {
		return -1, err
	}

	match := -1
	for i, v := range m.Variants {
		if v.OS != o {
			continue
		}
		if hasArch {
			if v.Architecture() == NormalizeArch(archPart) {
				return i, nil
			}
			continue
		}
		if match >= 0 {
			return -1, fmt.Errorf("%s has several variants; use os/arch", o)
		}
		match = i
	}
	if match < 0 {
		return -1, fmt.Errorf("no variant matches %s", key)
	}
	return match, nil
}
