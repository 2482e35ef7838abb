package assembly

// wellKnownBCL names the base-class-library assemblies this compiler ships
// hand-written runtime support for (§2.4's Intrinsic Call Registry exists
// precisely because these are never compiled from bytecode). Anything else
// is User code and must be fully reachability-analyzed and lowered.
var wellKnownBCL = map[string]bool{
	"mscorlib":                 true,
	"System.Private.CoreLib":   true,
	"System.Runtime":           true,
	"System.Collections":       true,
	"System.Linq":              true,
	"netstandard":               true,
}

// Classify reports whether name identifies a BCL assembly or user code.
func Classify(name string) Kind {
	if wellKnownBCL[name] {
		return BCL
	}
	return User
}

// AssemblySet is the core specification's Assembly Set (§4.1): the complete
// transitive closure of assemblies the entry assembly references, loaded via
// a Resolver and kept in deterministic load order.
type AssemblySet struct {
	resolver *Resolver
	Order    []*Assembly // load order, entry first
	byName   map[string]*Assembly
}

// NewAssemblySet constructs an empty set backed by the given resolver.
func NewAssemblySet(r *Resolver) *AssemblySet {
	return &AssemblySet{resolver: r, byName: make(map[string]*Assembly)}
}

// Load resolves entry and every assembly it transitively references, via the
// same worklist technique tinyrange-rtg's ResolveModule uses for package
// imports (frontend.go): seed a queue with the entry's own references, pop
// names one at a time, resolve and enqueue what they in turn reference, skip
// anything already loaded.
func (s *AssemblySet) Load(entry *Assembly) error {
	s.add(entry)

	var worklist []string
	worklist = append(worklist, referencedAssemblyNames(entry)...)

	for len(worklist) > 0 {
		name := worklist[0]
		worklist = worklist[1:]

		if _, ok := s.byName[name]; ok {
			continue
		}
		a, err := s.resolver.Resolve(name)
		if err != nil {
			return err
		}
		s.add(a)
		worklist = append(worklist, referencedAssemblyNames(a)...)
	}

	return nil
}

func (s *AssemblySet) add(a *Assembly) {
	if _, ok := s.byName[a.Name]; ok {
		return
	}
	s.byName[a.Name] = a
	s.Order = append(s.Order, a)
}

// Get returns a previously loaded assembly by name.
func (s *AssemblySet) Get(name string) (*Assembly, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// AllLoadedTypes returns every TypeDef across every loaded assembly, in
// assembly load order then declaration order — the deterministic base
// ordering §4.2's reachability worklist and §4.5's emission both build on.
func (s *AssemblySet) AllLoadedTypes() []*TypeDef {
	var all []*TypeDef
	for _, a := range s.Order {
		all = append(all, a.Types...)
	}
	return all
}

// referencedAssemblyNames walks every type, base type, interface, field and
// method signature in a to collect the distinct external assembly names its
// TypeRefs point at.
func referencedAssemblyNames(a *Assembly) []string {
	seen := make(map[string]bool)
	var names []string
	note := func(ref *TypeRef) {
		if ref == nil || ref.AssemblyName == "" || ref.AssemblyName == a.Name {
			return
		}
		if !seen[ref.AssemblyName] {
			seen[ref.AssemblyName] = true
			names = append(names, ref.AssemblyName)
		}
	}

	for _, t := range a.Types {
		note(t.BaseType)
		for _, i := range t.Interfaces {
			note(i)
		}
		for _, f := range t.Fields {
			note(f.Type)
		}
		for _, m := range t.Methods {
			note(m.Signature.Return)
			for _, p := range m.Signature.Params {
				note(p.Type)
			}
			if m.Body == nil {
				continue
			}
			for _, inst := range m.Body.Code {
				note(inst.TypeArg)
			}
		}
	}
	return names
}
