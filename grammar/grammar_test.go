package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleFunction(t *testing.T) {
	file, err := Parser.ParseString("t.m", `int main() { return 0; }`)
	require.NoError(t, err)
	require.Len(t, file.Items, 1)

	decl := file.Items[0].Decl
	require.NotNil(t, decl)
	assert.True(t, decl.Type.Int)
	assert.Equal(t, "main", decl.First.Name)
	require.NotNil(t, decl.Func)
	assert.Empty(t, decl.Func.Params)
	assert.Len(t, decl.Func.Body.Stmts, 1)
}

func TestParseGlobalsAndStruct(t *testing.T) {
	file, err := Parser.ParseString("t.m", `
struct P { int x; int y; };
int g, arr[10];
char *msg;
`)
	require.NoError(t, err)
	require.Len(t, file.Items, 3)

	st := file.Items[0].Struct
	require.NotNil(t, st)
	assert.Equal(t, "P", st.Name)
	assert.Len(t, st.Fields, 2)

	vars := file.Items[1].Decl
	require.NotNil(t, vars)
	assert.Equal(t, "g", vars.First.Name)
	require.Len(t, vars.Rest, 1)
	assert.Equal(t, "arr", vars.Rest[0].Name)
	assert.Equal(t, []int{10}, vars.Rest[0].Dims)

	msg := file.Items[2].Decl
	require.NotNil(t, msg)
	assert.Len(t, msg.First.Stars, 1)
}

func TestParseControlFlow(t *testing.T) {
	file, err := Parser.ParseString("t.m", `
int main() {
	int i;
	for (i = 0; i < 10; i = i + 1) {
		if (i == 5) continue;
		while (i > 2) break;
	}
	switch (i) {
	case 1:
		output i;
		break;
	default:
		output 'x';
	}
	return 0;
}
`)
	require.NoError(t, err)
	body := file.Items[0].Decl.Func.Body.Stmts
	require.Len(t, body, 4)
	assert.NotNil(t, body[1].For)
	assert.NotNil(t, body[2].Switch)
	assert.Len(t, body[2].Switch.Items, 5)
}

func TestParseComparisonOperators(t *testing.T) {
	for _, op := range []string{"<", ">", "<=", ">=", "==", "!="} {
		file, err := Parser.ParseString("t.m", `int main() { if (a `+op+` b) output a; return 0; }`)
		require.NoError(t, err, "operator %s", op)
		cond := file.Items[0].Decl.Func.Body.Stmts[0].If.Cond
		assert.Equal(t, op, cond.Assign.Left.Op, "operator %s", op)
	}
}

func TestParseExpressions(t *testing.T) {
	file, err := Parser.ParseString("t.m", `
int main() {
	a = 2 + 3 * 4;
	*p = arr[i].x;
	b = f(1, 'c', "s");
	c = &v;
	return 0;
}
`)
	require.NoError(t, err)
	stmts := file.Items[0].Decl.Func.Body.Stmts
	require.Len(t, stmts, 5)
	for _, s := range stmts[:4] {
		assert.NotNil(t, s.Expr)
	}
}

func TestParseComments(t *testing.T) {
	_, err := Parser.ParseString("t.m", `
// line comment
int main() {
	/* block
	   comment */
	return 0;
}
`)
	assert.NoError(t, err)
}

func TestParseErrorReported(t *testing.T) {
	_, err := Parser.ParseString("t.m", `int main( { return 0; }`)
	assert.Error(t, err)
}
