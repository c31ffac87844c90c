package web

// layoutTemplate - базовый layout с навигацией
const layoutTemplate = `{{define "layout"}}
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} - Notify Triage</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
</head>
<body class="bg-gray-50">
    <!-- Navigation -->
    <nav class="bg-white shadow-lg">
        <div class="max-w-7xl mx-auto px-4">
            <div class="flex justify-between h-16">
                <div class="flex space-x-8">
                    <div class="flex items-center">
                        <span class="text-xl font-bold text-blue-600">📨 Notify Triage</span>
                    </div>
                    <div class="hidden md:flex items-center space-x-4">
                        <a href="/" class="px-3 py-2 rounded-md text-sm font-medium {{if eq .Page "dashboard"}}bg-blue-100 text-blue-700{{else}}text-gray-700 hover:bg-gray-100{{end}}">Dashboard</a>
                        <a href="/decisions" class="px-3 py-2 rounded-md text-sm font-medium {{if eq .Page "decisions"}}bg-blue-100 text-blue-700{{else}}text-gray-700 hover:bg-gray-100{{end}}">Decisions</a>
                        <a href="/rules" class="px-3 py-2 rounded-md text-sm font-medium {{if eq .Page "rules"}}bg-blue-100 text-blue-700{{else}}text-gray-700 hover:bg-gray-100{{end}}">Rules</a>
                    </div>
                </div>
            </div>
        </div>
    </nav>

    <!-- Main Content -->
    <main class="max-w-7xl mx-auto px-4 py-6">
        {{if eq .Page "dashboard"}}{{template "dashboard" .}}{{end}}
        {{if eq .Page "decisions"}}{{template "decisions" .}}{{end}}
        {{if eq .Page "rules"}}{{template "rules" .}}{{end}}
    </main>
</body>
</html>
{{end}}`

// dashboardTemplate - главная страница
const dashboardTemplate = `{{define "dashboard"}}
<div class="space-y-6">
    <h1 class="text-3xl font-bold text-gray-900">Dashboard</h1>

    <!-- Grid 2x2 -->
    <div class="grid grid-cols-1 md:grid-cols-2 gap-6">
        <!-- Status Panel -->
        <div class="bg-white rounded-lg shadow-md p-6">
            <h2 class="text-xl font-bold mb-4 flex items-center gap-2">
                <span>📊</span>
                <span>Engine Status</span>
            </h2>
            <div id="status-panel" class="space-y-2">
                <p class="text-gray-500">Loading...</p>
            </div>
            <button
                hx-get="/api/status"
                hx-target="#status-panel"
                hx-swap="innerHTML"
                class="mt-4 w-full bg-blue-600 hover:bg-blue-700 text-white px-4 py-2 rounded transition">
                Refresh Status
            </button>
        </div>

        <!-- Simulate Panel -->
        <div class="bg-white rounded-lg shadow-md p-6">
            <h2 class="text-xl font-bold mb-4 flex items-center gap-2">
                <span>✉️</span>
                <span>Simulate Email</span>
            </h2>
            <div class="space-y-2">
                <input id="sim-subject" type="text" placeholder="Subject"
                    class="w-full border rounded px-3 py-2 text-sm">
                <textarea id="sim-body" rows="3" placeholder="Body"
                    class="w-full border rounded px-3 py-2 text-sm"></textarea>
            </div>
            <div id="simulate-result" class="mt-3 max-h-48 overflow-y-auto"></div>
            <button
                onclick="simulateEmail()"
                class="mt-4 w-full bg-green-600 hover:bg-green-700 text-white px-4 py-2 rounded transition">
                Run Through Pipeline
            </button>
        </div>

        <!-- Rules Panel -->
        <div class="bg-white rounded-lg shadow-md p-6">
            <h2 class="text-xl font-bold mb-4 flex items-center gap-2">
                <span>🔧</span>
                <span>Rules</span>
            </h2>
            <div id="rules-panel" class="space-y-2">
                <p class="text-gray-600">Operator rules loaded and active</p>
                <p class="text-sm text-gray-500">Review the current document on the <a href="/rules" class="text-blue-600 hover:underline">Rules</a> page</p>
            </div>
            <button
                hx-post="/api/reload"
                hx-target="#rules-panel"
                hx-swap="innerHTML"
                class="mt-4 w-full bg-purple-600 hover:bg-purple-700 text-white px-4 py-2 rounded transition">
                Reload Rules
            </button>
        </div>

        <!-- System Info Panel -->
        <div class="bg-white rounded-lg shadow-md p-6">
            <h2 class="text-xl font-bold mb-4 flex items-center gap-2">
                <span>⚙️</span>
                <span>System Info</span>
            </h2>
            <div id="system-panel" class="space-y-2">
                <p class="text-gray-500">Loading...</p>
            </div>
            <div id="failure-panel" class="space-y-2 mt-2"></div>
            <div class="mt-4 grid grid-cols-2 gap-2">
                <button
                    onclick="setFailure(true)"
                    class="bg-orange-600 hover:bg-orange-700 text-white px-4 py-2 rounded transition">
                    Failure ON
                </button>
                <button
                    onclick="setFailure(false)"
                    class="bg-gray-600 hover:bg-gray-700 text-white px-4 py-2 rounded transition">
                    Failure OFF
                </button>
            </div>
        </div>
    </div>
</div>

<script>
    // Загружаем данные при загрузке страницы
    document.addEventListener('DOMContentLoaded', function() {
        htmx.ajax('GET', '/api/status', {target: '#status-panel', swap: 'innerHTML'});
        fetch('/api/version').then(r => r.text()).then(html => {
            document.getElementById('system-panel').innerHTML = html;
        });
    });

    function simulateEmail() {
        const payload = {
            subject: document.getElementById('sim-subject').value,
            body: document.getElementById('sim-body').value,
            sender: 'dashboard@local'
        };
        fetch('/api/simulate', {
            method: 'POST',
            headers: {'Content-Type': 'application/json'},
            body: JSON.stringify(payload)
        }).then(r => r.json()).then(out => {
            document.getElementById('simulate-result').innerHTML =
                '<pre class="text-xs bg-gray-100 rounded p-2 whitespace-pre-wrap">' +
                JSON.stringify(out, null, 2) + '</pre>';
            htmx.ajax('GET', '/api/status', {target: '#status-panel', swap: 'innerHTML'});
        });
    }

    function setFailure(enabled) {
        fetch('/api/simulate-failure', {
            method: 'POST',
            headers: {'Content-Type': 'application/json'},
            body: JSON.stringify({enabled: enabled})
        }).then(r => r.json()).then(out => {
            document.getElementById('failure-panel').innerHTML =
                '<p class="text-sm text-gray-600">simulate_failure = ' + out.simulate_failure + '</p>';
            htmx.ajax('GET', '/api/status', {target: '#status-panel', swap: 'innerHTML'});
        });
    }
</script>
{{end}}`

// decisionsTemplate - страница ленты решений
const decisionsTemplate = `{{define "decisions"}}
<div class="space-y-6">
    <h1 class="text-3xl font-bold text-gray-900">Decisions</h1>

    <div class="bg-white rounded-lg shadow-md p-6">
        <div id="decisions-container" class="font-mono text-sm space-y-1">
            <p class="text-gray-500">Loading decisions...</p>
        </div>

        <!-- Pagination -->
        <div id="pagination" class="mt-6 flex justify-center">
        </div>
    </div>
</div>

<script>
    document.addEventListener('DOMContentLoaded', function() {
        htmx.ajax('GET', '/api/decisions?page=1', {target: '#decisions-container', swap: 'innerHTML'});
    });
</script>
{{end}}`

// rulesTemplate - страница текущего документа правил
const rulesTemplate = `{{define "rules"}}
<div class="space-y-6">
    <h1 class="text-3xl font-bold text-gray-900">Rules</h1>

    <div class="bg-white rounded-lg shadow-md p-6">
        <p class="text-sm text-gray-500 mb-4">
            Active operator rules, highest priority first. Update via
            <code class="bg-gray-100 px-1">POST /api/rules</code> or edit the rules file and reload.
        </p>
        <pre class="font-mono text-xs bg-gray-50 rounded p-4 overflow-x-auto">{{.Data}}</pre>
    </div>
</div>
{{end}}`
