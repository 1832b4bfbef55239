package runtimes

// languageMeta 本地维护的语言元数据：显示名、扩展名、编辑器模式、图标与初始模板
type languageMeta struct {
	Display  string
	Ext      string
	Mode     string
	Icon     string
	Template string
}

const (
	DefaultExtension  = "txt"
	DefaultEditorMode = "text"
	DefaultIcon       = "fas fa-code"
)

// 常见别名到 Piston 语言名
var staticAliases = map[string]string{
	"py":      "python",
	"python3": "python",
	"js":      "javascript",
	"node":    "javascript",
	"nodejs":  "javascript",
	"ts":      "typescript",
	"cpp":     "c++",
	"cxx":     "c++",
	"g++":     "c++",
	"gcc":     "c",
	"c#":      "csharp",
	"cs":      "csharp",
	"f#":      "fsharp",
	"golang":  "go",
	"rb":      "ruby",
	"rs":      "rust",
	"kt":      "kotlin",
	"sh":      "bash",
	"shell":   "bash",
	"hs":      "haskell",
	"pl":      "perl",
	"ex":      "elixir",
	"exs":     "elixir",
	"erl":     "erlang",
	"clj":     "clojure",
	"jl":      "julia",
	"ml":      "ocaml",
	"sql":     "sqlite3",
	"sqlite":  "sqlite3",
	"asm":     "nasm",
	"bf":      "brainfuck",
	"coffee":  "coffeescript",
	"ps":      "powershell",
	"pwsh":    "powershell",
	"v":       "vlang",
	"r":       "rscript",
}

var languages = map[string]languageMeta{
	"python": {
		Display: "Python", Ext: "py", Mode: "python", Icon: "devicon-python-plain",
		Template: "# Python\nprint(\"Hello, World!\")\n",
	},
	"javascript": {
		Display: "JavaScript", Ext: "js", Mode: "javascript", Icon: "devicon-javascript-plain",
		Template: "// JavaScript\nconsole.log(\"Hello, World!\");\n",
	},
	"typescript": {
		Display: "TypeScript", Ext: "ts", Mode: "text/typescript", Icon: "devicon-typescript-plain",
		Template: "// TypeScript\nconst greeting: string = \"Hello, World!\";\nconsole.log(greeting);\n",
	},
	"java": {
		Display: "Java", Ext: "java", Mode: "text/x-java", Icon: "devicon-java-plain",
		Template: "public class Main {\n    public static void main(String[] args) {\n        System.out.println(\"Hello, World!\");\n    }\n}\n",
	},
	"c": {
		Display: "C", Ext: "c", Mode: "text/x-csrc", Icon: "devicon-c-plain",
		Template: "#include <stdio.h>\n\nint main(void) {\n    printf(\"Hello, World!\\n\");\n    return 0;\n}\n",
	},
	"c++": {
		Display: "C++", Ext: "cpp", Mode: "text/x-c++src", Icon: "devicon-cplusplus-plain",
		Template: "#include <iostream>\n\nint main() {\n    std::cout << \"Hello, World!\" << std::endl;\n    return 0;\n}\n",
	},
	"csharp": {
		Display: "C#", Ext: "cs", Mode: "text/x-csharp", Icon: "devicon-csharp-plain",
		Template: "using System;\n\nclass Program {\n    static void Main() {\n        Console.WriteLine(\"Hello, World!\");\n    }\n}\n",
	},
	"go": {
		Display: "Go", Ext: "go", Mode: "go", Icon: "devicon-go-plain",
		Template: "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"Hello, World!\")\n}\n",
	},
	"rust": {
		Display: "Rust", Ext: "rs", Mode: "rust", Icon: "devicon-rust-plain",
		Template: "fn main() {\n    println!(\"Hello, World!\");\n}\n",
	},
	"ruby": {
		Display: "Ruby", Ext: "rb", Mode: "ruby", Icon: "devicon-ruby-plain",
		Template: "# Ruby\nputs \"Hello, World!\"\n",
	},
	"php": {
		Display: "PHP", Ext: "php", Mode: "php", Icon: "devicon-php-plain",
		Template: "<?php\necho \"Hello, World!\\n\";\n",
	},
	"swift": {
		Display: "Swift", Ext: "swift", Mode: "swift", Icon: "devicon-swift-plain",
		Template: "print(\"Hello, World!\")\n",
	},
	"kotlin": {
		Display: "Kotlin", Ext: "kt", Mode: "text/x-kotlin", Icon: "devicon-kotlin-plain",
		Template: "fun main() {\n    println(\"Hello, World!\")\n}\n",
	},
	"scala": {
		Display: "Scala", Ext: "scala", Mode: "text/x-scala", Icon: "devicon-scala-plain",
		Template: "object Main extends App {\n  println(\"Hello, World!\")\n}\n",
	},
	"haskell": {
		Display: "Haskell", Ext: "hs", Mode: "haskell", Icon: "devicon-haskell-plain",
		Template: "main :: IO ()\nmain = putStrLn \"Hello, World!\"\n",
	},
	"lua": {
		Display: "Lua", Ext: "lua", Mode: "lua", Icon: "devicon-lua-plain",
		Template: "-- Lua\nprint(\"Hello, World!\")\n",
	},
	"perl": {
		Display: "Perl", Ext: "pl", Mode: "perl", Icon: "devicon-perl-plain",
		Template: "#!/usr/bin/perl\nuse strict;\nuse warnings;\n\nprint \"Hello, World!\\n\";\n",
	},
	"rscript": {
		Display: "R", Ext: "r", Mode: "r", Icon: "devicon-r-plain",
		Template: "# R\ncat(\"Hello, World!\\n\")\n",
	},
	"bash": {
		Display: "Bash", Ext: "sh", Mode: "shell", Icon: "devicon-bash-plain",
		Template: "#!/bin/bash\necho \"Hello, World!\"\n",
	},
	"dart": {
		Display: "Dart", Ext: "dart", Mode: "dart", Icon: "devicon-dart-plain",
		Template: "void main() {\n  print('Hello, World!');\n}\n",
	},
	"elixir": {
		Display: "Elixir", Ext: "ex", Mode: "elixir", Icon: "devicon-elixir-plain",
		Template: "IO.puts(\"Hello, World!\")\n",
	},
	"erlang": {
		Display: "Erlang", Ext: "erl", Mode: "erlang", Icon: "devicon-erlang-plain",
		Template: "-module(main).\n-export([main/1]).\n\nmain(_) ->\n    io:format(\"Hello, World!~n\").\n",
	},
	"clojure": {
		Display: "Clojure", Ext: "clj", Mode: "clojure", Icon: "devicon-clojure-plain",
		Template: "(println \"Hello, World!\")\n",
	},
	"fsharp": {
		Display: "F#", Ext: "fs", Mode: "text/x-fsharp", Icon: "devicon-fsharp-plain",
		Template: "printfn \"Hello, World!\"\n",
	},
	"julia": {
		Display: "Julia", Ext: "jl", Mode: "julia", Icon: "devicon-julia-plain",
		Template: "println(\"Hello, World!\")\n",
	},
	"nim": {
		Display: "Nim", Ext: "nim", Mode: "text", Icon: "devicon-nim-plain",
		Template: "echo \"Hello, World!\"\n",
	},
	"ocaml": {
		Display: "OCaml", Ext: "ml", Mode: "text/x-ocaml", Icon: "devicon-ocaml-plain",
		Template: "let () = print_endline \"Hello, World!\"\n",
	},
	"pascal": {
		Display: "Pascal", Ext: "pas", Mode: "pascal", Icon: DefaultIcon,
		Template: "program Hello;\nbegin\n  writeln('Hello, World!');\nend.\n",
	},
	"prolog": {
		Display: "Prolog", Ext: "pro", Mode: "text", Icon: DefaultIcon,
		Template: ":- initialization(main).\nmain :- write('Hello, World!'), nl, halt.\n",
	},
	"racket": {
		Display: "Racket", Ext: "rkt", Mode: "scheme", Icon: "devicon-racket-plain",
		Template: "#lang racket\n(displayln \"Hello, World!\")\n",
	},
	"crystal": {
		Display: "Crystal", Ext: "cr", Mode: "crystal", Icon: "devicon-crystal-original",
		Template: "puts \"Hello, World!\"\n",
	},
	"d": {
		Display: "D", Ext: "d", Mode: "d", Icon: DefaultIcon,
		Template: "import std.stdio;\n\nvoid main() {\n    writeln(\"Hello, World!\");\n}\n",
	},
	"fortran": {
		Display: "Fortran", Ext: "f90", Mode: "fortran", Icon: "devicon-fortran-original",
		Template: "program hello\n  print *, \"Hello, World!\"\nend program hello\n",
	},
	"groovy": {
		Display: "Groovy", Ext: "groovy", Mode: "groovy", Icon: "devicon-groovy-plain",
		Template: "println \"Hello, World!\"\n",
	},
	"lisp": {
		Display: "Common Lisp", Ext: "lisp", Mode: "commonlisp", Icon: DefaultIcon,
		Template: "(format t \"Hello, World!~%\")\n",
	},
	"cobol": {
		Display: "COBOL", Ext: "cob", Mode: "cobol", Icon: DefaultIcon,
		Template: "       IDENTIFICATION DIVISION.\n       PROGRAM-ID. HELLO.\n       PROCEDURE DIVISION.\n           DISPLAY \"Hello, World!\".\n           STOP RUN.\n",
	},
	"zig": {
		Display: "Zig", Ext: "zig", Mode: "text", Icon: "devicon-zig-original",
		Template: "const std = @import(\"std\");\n\npub fn main() void {\n    std.debug.print(\"Hello, World!\\n\", .{});\n}\n",
	},
	"coffeescript": {
		Display: "CoffeeScript", Ext: "coffee", Mode: "coffeescript", Icon: "devicon-coffeescript-original",
		Template: "console.log \"Hello, World!\"\n",
	},
	"powershell": {
		Display: "PowerShell", Ext: "ps1", Mode: "powershell", Icon: "devicon-powershell-plain",
		Template: "Write-Output \"Hello, World!\"\n",
	},
	"sqlite3": {
		Display: "SQLite", Ext: "sql", Mode: "text/x-sql", Icon: "devicon-sqlite-plain",
		Template: "SELECT 'Hello, World!';\n",
	},
	"basic": {
		Display: "BASIC", Ext: "bas", Mode: "vb", Icon: DefaultIcon,
		Template: "PRINT \"Hello, World!\"\n",
	},
	"brainfuck": {
		Display: "Brainfuck", Ext: "bf", Mode: "brainfuck", Icon: DefaultIcon,
		Template: "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++.\n",
	},
	"nasm": {
		Display: "Assembly (NASM)", Ext: "asm", Mode: "gas", Icon: DefaultIcon,
		Template: "section .data\n    msg db \"Hello, World!\", 10\n    len equ $ - msg\n\nsection .text\n    global _start\n\n_start:\n    mov eax, 4\n    mov ebx, 1\n    mov ecx, msg\n    mov edx, len\n    int 0x80\n\n    mov eax, 1\n    xor ebx, ebx\n    int 0x80\n",
	},
	"vlang": {
		Display: "V", Ext: "v", Mode: "go", Icon: "devicon-vlang-plain",
		Template: "fn main() {\n\tprintln('Hello, World!')\n}\n",
	},
	"raku": {
		Display: "Raku", Ext: "raku", Mode: "perl", Icon: DefaultIcon,
		Template: "say 'Hello, World!';\n",
	},
	"octave": {
		Display: "Octave", Ext: "m", Mode: "octave", Icon: DefaultIcon,
		Template: "disp('Hello, World!')\n",
	},
	"smalltalk": {
		Display: "Smalltalk", Ext: "st", Mode: "smalltalk", Icon: DefaultIcon,
		Template: "Transcript showln: 'Hello, World!'.\n",
	},
	"forth": {
		Display: "Forth", Ext: "fth", Mode: "forth", Icon: DefaultIcon,
		Template: ".\" Hello, World!\" cr\n",
	},
	"emacs": {
		Display: "Emacs Lisp", Ext: "el", Mode: "commonlisp", Icon: DefaultIcon,
		Template: "(message \"Hello, World!\")\n",
	},
	"dash": {
		Display: "Dash", Ext: "dash", Mode: "shell", Icon: DefaultIcon,
		Template: "echo \"Hello, World!\"\n",
	},
	"befunge93": {
		Display: "Befunge-93", Ext: "b93", Mode: "text", Icon: DefaultIcon,
		Template: "\"!dlroW ,olleH\">:#,_@\n",
	},
	"golfscript": {
		Display: "GolfScript", Ext: "gs", Mode: "text", Icon: DefaultIcon,
		Template: "\"Hello, World!\"\n",
	},
	"osabie": {
		Display: "05AB1E", Ext: "abc", Mode: "text", Icon: DefaultIcon,
		Template: "\"Hello, World!\"\n",
	},
}
