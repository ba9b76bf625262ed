package patterns

import (
	"fmt"

	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
)

func SecurityRules() RuleSet {
	return RuleSet{
		Category: CategorySecurity,
		Rules: []Rule{
			{ID: "unsafe_deserialization", Description: "Deserialization or evaluation of untrusted data", Severity: defect.Critical, Detect: detectUnsafeDeserialization},
			{ID: "command_injection", Description: "Shell command built from non-literal input", Severity: defect.Critical, Detect: detectCommandInjection},
			{ID: "path_traversal", Description: "File path built from runtime input or containing '..'", Severity: defect.High, Detect: detectPathTraversal},
			{ID: "weak_cryptography", Description: "Broken hash or cipher algorithm", Severity: defect.High, Detect: detectWeakCrypto},
			{ID: "insecure_random", Description: "Secret value drawn from the random module", Severity: defect.High, Detect: detectInsecureRandom},
			{ID: "potential_xxe", Description: "XML parser that resolves external entities", Severity: defect.High, Detect: detectXXE},
			{ID: "leaked_secret", Description: "Access token or private key embedded in a string literal", Severity: defect.High, Detect: detectLeakedSecret},
		},
	}
}

var secretNameHints = []string{
	"password", "passwd", "pwd", "secret", "key", "token", "auth", "credential", "apikey", "apisecret",
}

func detectHardcodedSecret(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindConstant || n.Const == nil || n.Const.Kind != ir.ConstString || n.Const.Str == "" || isInterpolated(n) {
		return nil, nil
	}
	stmt := fc.Model.Parent(n)
	if stmt == nil || stmt.Value != n || (stmt.Kind != ir.KindAssign && stmt.Kind != ir.KindAnnAssign) {
		return nil, nil
	}
	for _, name := range targetNames(stmt) {
		if containsAny(name, secretNameHints) {
			return []defect.Defect{fc.finding(n, fmt.Sprintf("'%s' is assigned a hard-coded string", name), stmt.Text)}, nil
		}
	}
	return nil, nil
}

var sqlMethods = set("execute", "executemany", "query", "raw")

func detectSQLInjection(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindCall || len(n.Args) == 0 {
		return nil, nil
	}
	if _, last := callee(n); !sqlMethods[last] {
		return nil, nil
	}
	if !isDynamicString(n.Args[0]) {
		return nil, nil
	}
	return []defect.Defect{fc.finding(n, "query text is assembled at run time instead of using parameters", n.Text)}, nil
}

func detectInfiniteLoop(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindWhile || n.Test == nil || n.Test.Kind != ir.KindConstant || n.Test.Const == nil {
		return nil, nil
	}
	c := n.Test.Const
	if (c.Kind == ir.ConstBool && c.Bool) || (c.Kind == ir.ConstInt && c.Int == 1) {
		return []defect.Defect{fc.finding(n, "loop condition is always true", n.Text)}, nil
	}
	return nil, nil
}

var deserializers = set(
	"pickle.loads", "pickle.load", "cPickle.loads", "cPickle.load",
	"marshal.loads", "marshal.load", "dill.loads", "dill.load",
	"yaml.load", "yaml.unsafe_load", "eval", "exec",
)

func detectUnsafeDeserialization(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindCall {
		return nil, nil
	}
	dotted, _ := callee(n)
	if !deserializers[dotted] {
		return nil, nil
	}
	if dotted == "yaml.load" && hasSafeLoader(n) {
		return nil, nil
	}
	return []defect.Defect{fc.finding(n, fmt.Sprintf("'%s' can execute arbitrary code from its input", dotted), n.Text)}, nil
}

func hasSafeLoader(call *ir.Node) bool {
	for _, kw := range call.Keywords {
		if kw.Name == "Loader" && kw.Value != nil {
			switch ir.DottedName(kw.Value) {
			case "SafeLoader", "yaml.SafeLoader", "CSafeLoader", "yaml.CSafeLoader":
				return true
			}
		}
	}
	return false
}

var shellCalls = set(
	"os.system", "os.popen", "subprocess.call", "subprocess.run", "subprocess.Popen",
	"subprocess.check_call", "subprocess.check_output", "system", "popen", "call", "Popen",
)

func detectCommandInjection(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindCall || len(n.Args) == 0 {
		return nil, nil
	}
	dotted, _ := callee(n)
	if !shellCalls[dotted] {
		return nil, nil
	}
	cmd := n.Args[0]
	if isLiteral(cmd) {
		return nil, nil
	}
	desc := fmt.Sprintf("'%s' runs a command built from non-literal input", dotted)
	return []defect.Defect{fc.finding(n, desc, n.Text)}, nil
}

var fileCalls = set("open", "os.open", "os.remove", "os.unlink", "os.rename", "shutil.copy", "shutil.move", "shutil.rmtree")

func detectPathTraversal(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindCall || len(n.Args) == 0 {
		return nil, nil
	}
	dotted, _ := callee(n)
	if !fileCalls[dotted] {
		return nil, nil
	}
	path := n.Args[0]
	if call, _ := callee(path); call == "os.path.join" {
		return nil, nil
	}
	switch {
	case isDynamicString(path):
		return []defect.Defect{fc.finding(n, fmt.Sprintf("'%s' receives a path built by string operations", dotted), n.Text)}, nil
	case path.Kind == ir.KindConstant && path.Const != nil && path.Const.Kind == ir.ConstString && containsAny(path.Const.Str, []string{".."}):
		return []defect.Defect{fc.finding(n, fmt.Sprintf("'%s' receives a path that climbs out with '..'", dotted), n.Text)}, nil
	}
	return nil, nil
}

var weakAlgorithms = set(
	"hashlib.md5", "hashlib.sha1", "md5", "sha1",
	"DES.new", "ARC4.new", "Crypto.Cipher.DES.new", "Crypto.Cipher.ARC4.new",
)

func detectWeakCrypto(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindCall {
		return nil, nil
	}
	dotted, _ := callee(n)
	algo := ""
	switch {
	case weakAlgorithms[dotted]:
		algo = dotted
	case dotted == "hashlib.new" && len(n.Args) > 0 && isWeakHashName(n.Args[0]):
		algo = n.Args[0].Const.Str
	default:
		return nil, nil
	}
	return []defect.Defect{fc.finding(n, fmt.Sprintf("'%s' is not collision resistant", algo), n.Text)}, nil
}

func isWeakHashName(arg *ir.Node) bool {
	if arg.Kind != ir.KindConstant || arg.Const == nil || arg.Const.Kind != ir.ConstString {
		return false
	}
	switch arg.Const.Str {
	case "md5", "MD5", "sha1", "SHA1":
		return true
	}
	return false
}

var (
	randomCalls = set(
		"random.random", "random.randint", "random.choice", "random.choices",
		"random.randrange", "random.getrandbits", "randint", "choice", "randrange",
	)
	secretValueHints = []string{"token", "key", "secret", "password", "salt", "nonce"}
)

func detectInsecureRandom(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if (n.Kind != ir.KindAssign && n.Kind != ir.KindAnnAssign) || n.Value == nil || n.Value.Kind != ir.KindCall {
		return nil, nil
	}
	dotted, _ := callee(n.Value)
	if !randomCalls[dotted] {
		return nil, nil
	}
	for _, name := range targetNames(n) {
		if containsAny(name, secretValueHints) {
			desc := fmt.Sprintf("'%s' is generated with '%s', use the secrets module", name, dotted)
			return []defect.Defect{fc.finding(n, desc, n.Text)}, nil
		}
	}
	return nil, nil
}

var xmlParsers = set(
	"xml.etree.ElementTree.parse", "xml.etree.ElementTree.fromstring",
	"ElementTree.parse", "ElementTree.fromstring", "ET.parse", "ET.fromstring",
	"lxml.etree.parse", "lxml.etree.fromstring", "etree.parse", "etree.fromstring",
	"minidom.parse", "minidom.parseString", "xml.dom.minidom.parse", "xml.dom.minidom.parseString",
)

func detectXXE(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindCall {
		return nil, nil
	}
	dotted, _ := callee(n)
	if !matchesCallee(dotted, xmlParsers) {
		return nil, nil
	}
	return []defect.Defect{fc.finding(n, fmt.Sprintf("'%s' may resolve external entities, prefer defusedxml", dotted), n.Text)}, nil
}
