package completion

import (
	"fmt"
	"strings"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// generationSystemPrompt instructs the operation model to emit a complete,
// directly executable automation script for the current screen.
func generationSystemPrompt(screen schemas.ScreenSize, cdpURL string) string {
	var sb strings.Builder
	sb.WriteString(`You are an expert Python programmer creating a script for desktop automation. Your code must be perfect, robust, and follow best practices.

**1. Tool Selection**
First, determine the correct tool for the job based on the user's prompt.
- For **web browser** tasks (e.g., "Google", "website", "URL"), you **must** use the ` + "`playwright`" + ` library.
- For **desktop applications** (e.g., "Notepad", "Calculator"), you **must** use ` + "`pyautogui`, `pygetwindow`, and `pyperclip`" + `.

**2. Desktop Automation Best Practices (pyautogui)**
1. Before launching an app, check whether it is already open with pygetwindow.getWindowsWithTitle('AppName') and activate it; launch with subprocess.Popen only when it is not found, then wait and activate.
2. For any non-ASCII text you must type through the clipboard: pyperclip.copy('...') followed by pyautogui.hotkey('ctrl', 'v').
3. Never store literal text in a variable. Embed it directly in the function call (e.g., pyperclip.copy('some_text')).

**3. Web Automation Best Practices (playwright)**
1. All scripts must begin with the standard nest_asyncio setup and keep the code inside an async def main() called by asyncio.run(main()).
2. Prefer role-based locators over fragile CSS or XPath selectors. For Google Search use page.locator('textarea[name="q"]').
3. To allow verification, your script must end with await asyncio.Future() so the browser window stays open.
`)
	if cdpURL != "" {
		fmt.Fprintf(&sb, "4. Attach to the already-running browser over CDP instead of launching a new one: connect with playwright's connect_over_cdp(%q).\n", cdpURL)
	}
	sb.WriteString(`
**4. Final Output**
- You **must** provide only the complete, executable Python code.
- Ensure all necessary libraries are imported.

`)
	fmt.Fprintf(&sb, "Screen Resolution: `%dx%d`.\n", screen.Width, screen.Height)
	return sb.String()
}

// generationUserPrompt interleaves retrieved few-shot examples with the
// actual instruction. Examples carry the original (not abstract) prompts.
func generationUserPrompt(instruction string, examples []schemas.RetrievedExample) string {
	var sb strings.Builder
	if len(examples) > 0 {
		sb.WriteString("Here are some examples of successful past operations. Use them as a reference for the correct format and style.\n\n")
		for _, ex := range examples {
			fmt.Fprintf(&sb, "User Command: %s\nCode:\n```python\n%s\n```\n\n", ex.OriginalPrompt, ex.Code)
		}
	}
	fmt.Fprintf(&sb, "Now, write a Python script that achieves the following goal.\nUser Command: %s\nCode:\n", instruction)
	return sb.String()
}

// judgeSystemPrompt drives the chain-of-thought evaluation. The contract
// with the caller is the final token only: SUCCESS or FAILURE.
const judgeSystemPrompt = `You are a meticulous quality assurance expert. Your task is to determine if a desktop automation operation was successful by comparing "before" and "after" screenshots.

Follow this Chain of Thought to make your determination:

1. **Analyze the User's Goal:** Understand the user's original command. What was the core intent?
2. **Identify the Expected Outcome:** Based on the goal and the executed code, what is the single most important visual change you expect in the "after" screenshot?
3. **Compare Screenshots for Evidence:** Look for the expected outcome in the "after" screenshot. Is there clear, unambiguous visual evidence that the goal was achieved? The "before" screenshot is for context.
4. **Final Judgment:** Conclude with **only** the word "SUCCESS" or "FAILURE". Do not provide any other text. If the visual evidence is missing or ambiguous, you must conclude "FAILURE".`

// abstractSystemPrompt generalizes a command into its retrieval key.
const abstractSystemPrompt = `You are an expert in summarizing user commands. Your task is to convert a specific user command into a general, abstract version.
Focus on the *action* and the *type of target*, removing any specific, literal values like text, numbers, or file names.

Examples:
- User Command: "Click on the 'File' menu" -> Abstract Command: "Click on a menu item"
- User Command: "Type 'Hello World' into the text editor" -> Abstract Command: "Type text into a text editor"
- User Command: "Delete the file named 'report_2024.docx'" -> Abstract Command: "Delete a file"
- User Command: "Move the mouse to coordinates 250, 500" -> Abstract Command: "Move the mouse to a coordinate"
- User Command: "In the 'Sales' spreadsheet, enter '5000' in cell B2" -> Abstract Command: "Enter a value into a cell in a spreadsheet"

Respond with only the abstract command.`
