package pipeline

// shimTemplate 注入到每个脚本头部的Python运行时
// %s 为base64编码的上游输出JSON
const shimTemplate = `import atexit as _pe_atexit
import base64 as _pe_base64
import json as _pe_json

PREVIOUS_OUTPUTS = _pe_json.loads(_pe_base64.b64decode("%s").decode("utf-8"))
TASK_OUTPUTS = {}


def get_task_output(task_name=None, task_order=None):
    """Return the outputs of a completed upstream task, looked up by name or order."""
    for _pe_item in PREVIOUS_OUTPUTS:
        if task_name is not None and _pe_item.get("task_name") == task_name:
            return _pe_item.get("outputs") or {}
        if task_order is not None and _pe_item.get("task_order") == task_order:
            return _pe_item.get("outputs") or {}
    return {}


def get_previous_outputs():
    """Return every upstream record in execution order."""
    return list(PREVIOUS_OUTPUTS)


def set_task_output(key, value):
    """Record a value for downstream tasks."""
    TASK_OUTPUTS[key] = value


def _pe_save_task_outputs():
    if TASK_OUTPUTS:
        print("%s" + _pe_json.dumps(TASK_OUTPUTS, default=str) + "%s", flush=True)


_pe_atexit.register(_pe_save_task_outputs)
# ---- task script ----
`
