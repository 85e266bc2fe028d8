package language

// Each template places imports first, then the user code verbatim, then an
// entry point that builds a Solution (where the language has one) and runs
// the test snippet. Substitution is plain concatenation.

func pythonTemplate(userCode, testCode string) string {
	return "## Imports\n" +
		"from typing import *\n" +
		"\n" +
		"## Solution\n" +
		userCode + "\n" +
		"\n" +
		"## Test Execution\n" +
		"sol = Solution()\n" +
		testCode
}

// scriptTemplate serves JavaScript and TypeScript.
func scriptTemplate(userCode, testCode string) string {
	return "// Solution\n" +
		userCode + "\n" +
		"\n" +
		"// Test Execution\n" +
		"const sol = new Solution();\n" +
		testCode
}

func javaTemplate(userCode, testCode string) string {
	return "import java.util.*;\n" +
		"\n" +
		"// Solution\n" +
		userCode + "\n" +
		"\n" +
		"// Test Execution\n" +
		"public class Main {\n" +
		"    public static void main(String[] args) {\n" +
		"        Solution sol = new Solution();\n" +
		"        " + testCode + "\n" +
		"    }\n" +
		"}"
}

func cppTemplate(userCode, testCode string) string {
	return "#include <iostream>\n" +
		"#include <vector>\n" +
		"#include <string>\n" +
		"#include <algorithm>\n" +
		"#include <map>\n" +
		"#include <set>\n" +
		"using namespace std;\n" +
		"\n" +
		"// Solution\n" +
		userCode + "\n" +
		"\n" +
		"// Test Execution\n" +
		"int main() {\n" +
		"    Solution sol;\n" +
		"    " + testCode + "\n" +
		"    return 0;\n" +
		"}"
}

// cTemplate has no Solution type; the test snippet calls user functions directly.
func cTemplate(userCode, testCode string) string {
	return "#include <stdio.h>\n" +
		"#include <stdlib.h>\n" +
		"#include <string.h>\n" +
		"\n" +
		"// Solution\n" +
		userCode + "\n" +
		"\n" +
		"// Test Execution\n" +
		"int main() {\n" +
		"    " + testCode + "\n" +
		"    return 0;\n" +
		"}"
}

func csharpTemplate(userCode, testCode string) string {
	return "using System;\n" +
		"using System.Collections.Generic;\n" +
		"using System.Linq;\n" +
		"\n" +
		"// Solution\n" +
		userCode + "\n" +
		"\n" +
		"// Test Execution\n" +
		"class Program {\n" +
		"    static void Main() {\n" +
		"        Solution sol = new Solution();\n" +
		"        " + testCode + "\n" +
		"    }\n" +
		"}"
}

func goTemplate(userCode, testCode string) string {
	return "package main\n" +
		"\n" +
		"import (\n" +
		"    \"fmt\"\n" +
		")\n" +
		"\n" +
		"// Solution\n" +
		userCode + "\n" +
		"\n" +
		"// Test Execution\n" +
		"func main() {\n" +
		"    " + testCode + "\n" +
		"}"
}

func rustTemplate(userCode, testCode string) string {
	return "// Solution\n" +
		userCode + "\n" +
		"\n" +
		"// Test Execution\n" +
		"fn main() {\n" +
		"    " + testCode + "\n" +
		"}"
}
